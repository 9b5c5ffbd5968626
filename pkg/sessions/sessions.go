// Package sessions implements the session-message store: conversation turns
// appended onto a Session row, with large turn bodies offloaded to the KV
// store under session-{id}-msg-{ordinal} and a short synopsis kept inline.
// The inline turn carries a _compressed flag; readers that need the full
// body opt in with Expand on read.
package sessions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/healer-ai/p8fs/pkg/embedding"
	"github.com/healer-ai/p8fs/pkg/errs"
	"github.com/healer-ai/p8fs/pkg/kvstore"
	"github.com/healer-ai/p8fs/pkg/model"
	"github.com/healer-ai/p8fs/pkg/obs"
	"github.com/healer-ai/p8fs/pkg/repository"
	"github.com/healer-ai/p8fs/pkg/storage"
)

const (
	// CompressThresholdBytes is the fixed offload rule: a turn's content
	// moves to KV when it exceeds this many bytes.
	CompressThresholdBytes = 1024
	// SynopsisBytes is how much of a compressed turn stays inline.
	SynopsisBytes = 256
)

// Message is one conversation turn as stored inline on the Session row's
// metadata. When Compressed is true, Content holds only the synopsis and
// the full body lives in KV under SessionMessageKey(sessionID, Ordinal).
type Message struct {
	Ordinal    int    `json:"ordinal"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	Compressed bool   `json:"_compressed,omitempty"`
}

// Store appends and reloads session messages for one tenant.
type Store struct {
	repo     *repository.Repository
	kv       *kvstore.Store
	tenantID string
}

// NewStore opens the sessions repository for tenantID.
func NewStore(sp *storage.Provider, kv *kvstore.Store, emb *embedding.Service, tenantID string) (*Store, error) {
	repo, err := repository.New(sp, kv, emb, tenantID, "sessions")
	if err != nil {
		return nil, err
	}
	return &Store{repo: repo, kv: kv, tenantID: tenantID}, nil
}

// Append adds one turn to sessionID, creating the Session header on the
// first turn. Turns larger than CompressThresholdBytes are offloaded to KV
// with a synopsis left inline; a failed KV offload falls back to storing
// the full turn inline rather than losing content.
func (s *Store) Append(ctx context.Context, sessionID, role, content string) (Message, error) {
	log := obs.WithTenant(obs.Component("sessions"), s.tenantID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	row, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return Message{}, err
	}
	if row == nil {
		row = model.Entity{
			"id":           sessionID,
			"tenant_id":    s.tenantID,
			"session_type": model.SessionTypeChat,
			"metadata":     map[string]any{},
		}
	}

	meta, _ := row["metadata"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
	}
	messages := DecodeMessages(meta["messages"])

	msg := Message{Ordinal: len(messages), Role: role, Content: content}
	if len(content) > CompressThresholdBytes {
		key := kvstore.SessionMessageKey(sessionID, msg.Ordinal)
		if _, err := s.kv.Put(ctx, s.tenantID, "", key, []byte(content), 0); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Int("ordinal", msg.Ordinal).
				Msg("message offload to KV failed, keeping full turn inline")
		} else {
			msg.Content = synopsis(content)
			msg.Compressed = true
		}
	}

	messages = append(messages, msg)
	meta["messages"] = messages
	total, _ := meta["total_tokens"].(float64)
	meta["total_tokens"] = total + float64(estimateTokens(content))
	row["metadata"] = meta
	row["updated_at"] = time.Now().UTC()

	if _, err := s.repo.Upsert(ctx, []model.Entity{row}, false); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Messages reloads sessionID's turns in ordinal order. With expand set,
// compressed turns are re-read from KV; a missing KV key degrades to the
// inline synopsis (readers must tolerate staleness, never fail the reload).
func (s *Store) Messages(ctx context.Context, sessionID string, expand bool) ([]Message, error) {
	row, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errs.NotFound("sessions.Messages", "session not found")
	}
	meta, _ := row["metadata"].(map[string]any)
	messages := DecodeMessages(meta["messages"])
	if !expand {
		return messages, nil
	}

	log := obs.WithTenant(obs.Component("sessions"), s.tenantID)
	for i, m := range messages {
		if !m.Compressed {
			continue
		}
		body, err := s.kv.Get(ctx, s.tenantID, "", kvstore.SessionMessageKey(sessionID, m.Ordinal))
		if err != nil || body == nil {
			log.Warn().Err(err).Str("session_id", sessionID).Int("ordinal", m.Ordinal).
				Msg("compressed message body missing from KV, returning synopsis")
			continue
		}
		messages[i].Content = string(body)
		messages[i].Compressed = false
	}
	return messages, nil
}

// DecodeMessages converts a metadata "messages" value back into typed
// Messages, whether it is the typed slice a writer just attached or the
// []any of maps a JSON round-trip through the repository produces.
func DecodeMessages(raw any) []Message {
	switch v := raw.(type) {
	case nil:
		return nil
	case []Message:
		return v
	default:
		b, err := json.Marshal(raw)
		if err != nil {
			return nil
		}
		var out []Message
		if err := json.Unmarshal(b, &out); err != nil {
			return nil
		}
		return out
	}
}

// synopsis truncates s to SynopsisBytes on a rune boundary.
func synopsis(s string) string {
	if len(s) <= SynopsisBytes {
		return s
	}
	cut := SynopsisBytes
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}

// estimateTokens mirrors the ~4-chars-per-token heuristic used elsewhere in
// this core for budgeting, good enough for metadata.total_tokens tracking.
func estimateTokens(s string) int {
	n := len([]rune(s))
	if n == 0 {
		return 0
	}
	t := n / 4
	if t == 0 {
		t = 1
	}
	return t
}
