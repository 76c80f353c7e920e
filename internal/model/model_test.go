package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTopic(t *testing.T) {
	assert.Equal(t, "work_history", NormalizeTopic("  Work   History  "))
	assert.Equal(t, "diet", NormalizeTopic("Diet"))
	assert.Equal(t, "", NormalizeTopic("   "))
}

func TestNewProfileKey(t *testing.T) {
	key := NewProfileKey("Work", "  Current Employer ")
	assert.Equal(t, ProfileKey{Topic: "work", SubTopic: "current_employer"}, key)
}

func TestProfileKey(t *testing.T) {
	p := Profile{Attributes: ProfileAttributes{Topic: "diet", SubTopic: "allergies"}}
	assert.Equal(t, ProfileKey{Topic: "diet", SubTopic: "allergies"}, p.Key())
}

func TestBlobTypeSupported(t *testing.T) {
	assert.True(t, BlobTypeChat.Supported())
	assert.True(t, BlobTypeDoc.Supported())
	assert.False(t, BlobTypeCode.Supported())
	assert.False(t, BlobTypeImage.Supported())
	assert.False(t, BlobTypeTranscript.Supported())
}

func TestNewID_Unique(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
