package ingress

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	verifyErr   error
	schemaFails bool
	text        string
}

func (f *fakeAdapter) Platform() string { return "fake" }

func (f *fakeAdapter) Verify(_ []byte, _ map[string]string) error { return f.verifyErr }

func (f *fakeAdapter) ValidatePayload(_ []byte) []ValidationError {
	if f.schemaFails {
		return []ValidationError{{Field: "text", Message: "required"}}
	}
	return nil
}

func (f *fakeAdapter) Parse(_ []byte, _ map[string]string) (InboundMessage, error) {
	return InboundMessage{SourcePlatform: "fake", Text: f.text, ReceivedAt: time.Now().UTC()}, nil
}

func (f *fakeAdapter) Reply(_ context.Context, _ string, _ string, _ []string) error { return nil }

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPipeline(
		Config{RateLimitPerMin: 3, DedupTTL: 50 * time.Millisecond, RateLimitEventsToBlocklist: 2},
		NewBlocklist(),
		NewInProcessRateLimiter(3),
		NewDeduplicator(nil, 50*time.Millisecond, 1000),
		logger,
	)
}

func TestIngest_HappyPathClassifiesAndAccepts(t *testing.T) {
	p := newTestPipeline(t)
	res := p.Ingest(context.Background(), &fakeAdapter{text: "join the raid please"}, "1.2.3.4:u1", []byte(`{}`), map[string]string{"X-Request-Id": "r1"})
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeAccepted, res.Outcome)
	assert.Equal(t, CategoryRaidControl, res.Classification.Category)
}

func TestIngest_RejectsOnBlockedSource(t *testing.T) {
	p := newTestPipeline(t)
	p.blocklist.Add("5.6.7.8:u2")
	res := p.Ingest(context.Background(), &fakeAdapter{text: "hi"}, "5.6.7.8:u2", []byte(`{}`), nil)
	assert.Equal(t, OutcomeBlocked, res.Outcome)
	require.Error(t, res.Err)
}

func TestIngest_RejectsOnInvalidSignature(t *testing.T) {
	p := newTestPipeline(t)
	res := p.Ingest(context.Background(), &fakeAdapter{verifyErr: errors.New("bad sig"), text: "hi"}, "1.1.1.1:u3", []byte(`{}`), nil)
	assert.Equal(t, OutcomeInvalidSignature, res.Outcome)
}

func TestIngest_DuplicateSuppressedOnSecondDelivery(t *testing.T) {
	p := newTestPipeline(t)
	headers := map[string]string{"X-Request-Id": "dup-1"}
	first := p.Ingest(context.Background(), &fakeAdapter{text: "hi"}, "2.2.2.2:u4", []byte(`{}`), headers)
	require.Equal(t, OutcomeAccepted, first.Outcome)

	second := p.Ingest(context.Background(), &fakeAdapter{text: "hi"}, "2.2.2.2:u4", []byte(`{}`), headers)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)

	time.Sleep(60 * time.Millisecond)
	third := p.Ingest(context.Background(), &fakeAdapter{text: "hi"}, "2.2.2.2:u4", []byte(`{}`), headers)
	assert.Equal(t, OutcomeAccepted, third.Outcome, "dedup window expired, same ref should be accepted again")
}

func TestIngest_SchemaInvalidRejectsBeforeNormalization(t *testing.T) {
	p := newTestPipeline(t)
	res := p.Ingest(context.Background(), &fakeAdapter{schemaFails: true, text: "hi"}, "3.3.3.3:u5", []byte(`{}`), map[string]string{"X-Request-Id": "r2"})
	assert.Equal(t, OutcomeSchemaInvalid, res.Outcome)
}

func TestIngest_RateLimitExceededPromotesToBlocklistAfterThreshold(t *testing.T) {
	p := newTestPipeline(t)
	key := "4.4.4.4:u6"

	// perMinute=3: first 3 Allow() calls succeed, then it rejects.
	for i := 0; i < 3; i++ {
		res := p.Ingest(context.Background(), &fakeAdapter{text: "hi"}, key, []byte(`{}`), map[string]string{"X-Request-Id": "a" + string(rune('0'+i))})
		require.Equal(t, OutcomeAccepted, res.Outcome)
	}

	first := p.Ingest(context.Background(), &fakeAdapter{text: "hi"}, key, []byte(`{}`), map[string]string{"X-Request-Id": "b0"})
	assert.Equal(t, OutcomeRateLimited, first.Outcome)
	second := p.Ingest(context.Background(), &fakeAdapter{text: "hi"}, key, []byte(`{}`), map[string]string{"X-Request-Id": "b1"})
	assert.Contains(t, []Outcome{OutcomeRateLimited, OutcomeBlocked}, second.Outcome)
	assert.True(t, p.blocklist.Contains(key), "source should be promoted to the blocklist after RateLimitEventsToBlocklist violations")
}

func TestIngest_ClassifiesUnmatchedTextAsCommunityChat(t *testing.T) {
	p := newTestPipeline(t)
	res := p.Ingest(context.Background(), &fakeAdapter{text: "just saying hello to everyone"}, "9.9.9.9:u7", []byte(`{}`), map[string]string{"X-Request-Id": "r3"})
	require.Equal(t, OutcomeAccepted, res.Outcome)
	assert.Equal(t, CategoryCommunityChat, res.Classification.Category)
}

func TestIngest_EmergencyPhraseRoutesToEmergencyCategory(t *testing.T) {
	p := newTestPipeline(t)
	res := p.Ingest(context.Background(), &fakeAdapter{text: "mods the wallet drained help"}, "9.9.9.8:u8", []byte(`{}`), map[string]string{"X-Request-Id": "r4"})
	require.Equal(t, OutcomeAccepted, res.Outcome)
	assert.Equal(t, CategoryEmergency, res.Classification.Category)
	assert.Equal(t, 1.0, res.Classification.Confidence)
}
