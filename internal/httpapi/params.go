package httpapi

import (
	"net/http"

	"github.com/skorpland/powermemo/internal/model"
)

func pathBlobType(r *http.Request) model.BlobType {
	return model.BlobType(r.PathValue("type"))
}
