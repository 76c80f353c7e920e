package chatflush

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/skorpland/powermemo/internal/model"
	"github.com/skorpland/powermemo/internal/promptpack"
	"github.com/skorpland/powermemo/internal/storepg"
)

// topicState is the post-merge view of one topic's sub-topics, combining
// untouched existing profiles with whatever this flush added or changed.
type topicState struct {
	topic     string
	subtopics map[string]*subtopicState
}

type subtopicState struct {
	id      string // empty when this sub-topic is a brand-new profile
	content string
}

// organizeOverflowingTopics runs Stage 5: for every topic whose sub-topic
// count exceeds MaxProfileSubtopics after this flush's adds/updates, ask the
// LLM to merge the weakest sub-topics together, in parallel across topics.
// For each organized topic it removes that topic's pending adds/updates from
// toAdd/toUpdate, appends the surviving sub-topics to toAdd as new profiles,
// and returns the ids of all of the topic's existing profiles for deletion.
func (f *ChatFlusher) organizeOverflowingTopics(ctx context.Context, projectID, userID string, pack *promptpack.Pack, existing []model.Profile, toAdd *[]model.Profile, toUpdate *[]storepg.ProfileUpdate) ([]string, error) {
	states := buildTopicStates(existing, *toAdd, *toUpdate)

	var overflowing []*topicState
	for _, st := range states {
		if len(st.subtopics) > f.cfg.MaxProfileSubtopics {
			overflowing = append(overflowing, st)
		}
	}
	if len(overflowing) == 0 {
		return nil, nil
	}

	type organizeOutcome struct {
		topic    string
		surviving []promptpack.OrganizedSubtopic
	}
	outcomes := make([]organizeOutcome, len(overflowing))

	g, gctx := errgroup.WithContext(ctx)
	for i, st := range overflowing {
		i, st := i, st
		g.Go(func() error {
			names := make([]string, 0, len(st.subtopics))
			memos := make([]string, 0, len(st.subtopics))
			for name, sub := range st.subtopics {
				names = append(names, name)
				memos = append(memos, name+": "+sub.content)
			}
			system, user := pack.OrganizeProfile(st.topic, memos, f.cfg.MaxProfileSubtopics)
			text, err := f.complete(gctx, projectID, f.cfg.BestLLMModel, system, user)
			if err != nil {
				return err
			}
			surviving := promptpack.ParseOrganizedSubtopics(text, f.cfg.TabSeparator)
			if len(surviving) == 0 {
				// Parse failure or empty response: keep the topic untouched
				// rather than destructively dropping every memo.
				for _, name := range names {
					surviving = append(surviving, promptpack.OrganizedSubtopic{SubTopic: name, Memo: st.subtopics[name].content})
				}
			}
			// Cap the condensed set to max_profile_subtopics/2 + 1 (spec
			// §4.7 stage 5), deduplicating by sub_topic in case the LLM
			// repeated one.
			maxSurviving := f.cfg.MaxProfileSubtopics/2 + 1
			surviving = dedupeBySubTopic(surviving)
			if len(surviving) > maxSurviving {
				surviving = surviving[:maxSurviving]
			}
			outcomes[i] = organizeOutcome{topic: st.topic, surviving: surviving}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Stage 5 is a wholesale replace, not a name-preserving merge (spec
	// §4.7: "replace the topic's current entries with the condensed set
	// ... queue DELETEs for the replaced, ADDs for the new ones") — the
	// organize prompt is free to introduce a consolidated sub_topic name
	// that never existed before, so every pre-organize entry for an
	// overflowing topic is deleted (or dropped from the pending add/update
	// sets) and every surviving line becomes a fresh ADD.
	var deletes []string
	for i, st := range overflowing {
		for name, sub := range st.subtopics {
			if sub.id != "" {
				deletes = append(deletes, sub.id)
			}
			removeFromPending(name, st.topic, toAdd)
			removeUpdateByID(sub.id, toUpdate)
		}

		seenNew := make(map[string]bool, len(outcomes[i].surviving))
		for _, s := range outcomes[i].surviving {
			if seenNew[s.SubTopic] {
				continue
			}
			seenNew[s.SubTopic] = true
			*toAdd = append(*toAdd, model.Profile{
				Content:    s.Memo,
				Attributes: model.ProfileAttributes{Topic: st.topic, SubTopic: s.SubTopic},
			})
		}
	}
	return deletes, nil
}

// dedupeBySubTopic keeps the first occurrence of each normalized sub_topic,
// matching ProfileStore's one-row-per-key invariant.
func dedupeBySubTopic(in []promptpack.OrganizedSubtopic) []promptpack.OrganizedSubtopic {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if seen[s.SubTopic] {
			continue
		}
		seen[s.SubTopic] = true
		out = append(out, s)
	}
	return out
}

func buildTopicStates(existing []model.Profile, toAdd []model.Profile, toUpdate []storepg.ProfileUpdate) map[string]*topicState {
	states := make(map[string]*topicState)
	get := func(topic string) *topicState {
		st, ok := states[topic]
		if !ok {
			st = &topicState{topic: topic, subtopics: make(map[string]*subtopicState)}
			states[topic] = st
		}
		return st
	}

	updatedIDs := make(map[string]*storepg.ProfileUpdate, len(toUpdate))
	for i := range toUpdate {
		updatedIDs[toUpdate[i].ID] = &toUpdate[i]
	}

	for _, p := range existing {
		st := get(p.Attributes.Topic)
		content := p.Content
		if u, touched := updatedIDs[p.ID]; touched && u.Content != nil {
			content = *u.Content
		}
		st.subtopics[p.Attributes.SubTopic] = &subtopicState{id: p.ID, content: content}
	}
	for _, p := range toAdd {
		st := get(p.Attributes.Topic)
		st.subtopics[p.Attributes.SubTopic] = &subtopicState{content: p.Content}
	}
	return states
}

func removeFromPending(subTopic, topic string, toAdd *[]model.Profile) {
	kept := (*toAdd)[:0:0]
	for _, p := range *toAdd {
		if p.Attributes.Topic == topic && p.Attributes.SubTopic == subTopic {
			continue
		}
		kept = append(kept, p)
	}
	*toAdd = kept
}

// removeUpdateByID drops a pending profile update for an id that Stage 5 is
// about to delete instead (the topic being organized wholesale replaces its
// entries, so a queued content update for one of them would race the
// delete).
func removeUpdateByID(id string, toUpdate *[]storepg.ProfileUpdate) {
	if id == "" {
		return
	}
	kept := (*toUpdate)[:0:0]
	for _, u := range *toUpdate {
		if u.ID == id {
			continue
		}
		kept = append(kept, u)
	}
	*toUpdate = kept
}

// reSummarizeOversized runs Stage 6: any surviving memo whose token count
// exceeds MaxPreProfileTokenSize is compressed in place.
func (f *ChatFlusher) reSummarizeOversized(ctx context.Context, projectID string, pack *promptpack.Pack, toAdd []model.Profile, toUpdate []storepg.ProfileUpdate) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range toAdd {
		i := i
		if f.counter.Count(toAdd[i].Content) <= f.cfg.MaxPreProfileTokenSize {
			continue
		}
		g.Go(func() error {
			system, user := pack.ReSummary(toAdd[i].Attributes.Topic, toAdd[i].Attributes.SubTopic, toAdd[i].Content, f.cfg.MaxPreProfileTokenSize)
			text, err := f.complete(gctx, projectID, f.cfg.SummaryLLMModel, system, user)
			if err != nil {
				return err
			}
			toAdd[i].Content = f.counter.Truncate(text, f.cfg.MaxPreProfileTokenSize/2)
			return nil
		})
	}
	for i := range toUpdate {
		i := i
		if toUpdate[i].Content == nil || f.counter.Count(*toUpdate[i].Content) <= f.cfg.MaxPreProfileTokenSize {
			continue
		}
		g.Go(func() error {
			system, user := pack.ReSummary("", "", *toUpdate[i].Content, f.cfg.MaxPreProfileTokenSize)
			text, err := f.complete(gctx, projectID, f.cfg.SummaryLLMModel, system, user)
			if err != nil {
				return err
			}
			truncated := f.counter.Truncate(text, f.cfg.MaxPreProfileTokenSize/2)
			toUpdate[i].Content = &truncated
			return nil
		})
	}
	return g.Wait()
}
