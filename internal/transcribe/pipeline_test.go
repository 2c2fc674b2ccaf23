package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/gradeflow/internal/common"
	"github.com/Veraticus/gradeflow/internal/llm"
)

// scriptedClient fails each page a fixed number of times before answering.
type scriptedClient struct {
	failures map[string]int
	replies  map[string]string
	calls    map[string]int
	block    bool
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	mu       sync.Mutex
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{
		failures: make(map[string]int),
		replies:  make(map[string]string),
		calls:    make(map[string]int),
	}
}

func (c *scriptedClient) Complete(ctx context.Context, req llm.Request) (string, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		seen := c.maxSeen.Load()
		if n <= seen || c.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	page := string(req.Images[0].Data)

	c.mu.Lock()
	c.calls[page]++
	call := c.calls[page]
	remaining := c.failures[page]
	reply := c.replies[page]
	c.mu.Unlock()

	if c.block {
		<-ctx.Done()
		return "", ctx.Err()
	}

	// Give concurrent calls a chance to overlap.
	time.Sleep(5 * time.Millisecond)

	if remaining < 0 || call <= remaining {
		return "", fmt.Errorf("provider unavailable for %s", page)
	}
	return reply, nil
}

func (c *scriptedClient) callsFor(page string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[page]
}

type sleepRecorder struct {
	delays []time.Duration
	mu     sync.Mutex
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func testPages(n int) []Page {
	pages := make([]Page, n)
	for i := range pages {
		pages[i] = Page{Index: i, Data: []byte(fmt.Sprintf("page-%d", i)), MIMEType: "image/png"}
	}
	return pages
}

func answersJSON(question int, sub, text string) string {
	return fmt.Sprintf(`{"answers": [{"question_number": %d, "sub_question_id": %q, "answer_text": %q}]}`, question, sub, text)
}

func TestTranscribe_RetriesThenSucceeds(t *testing.T) {
	client := newScriptedClient()
	client.failures["page-0"] = 2
	client.replies["page-0"] = answersJSON(1, "", "def push(x): ...")

	recorder := &sleepRecorder{}
	pipeline := NewPipeline(client, Config{
		MaxConcurrent: 2,
		Parallel:      true,
		MaxRetries:    3,
		BaseDelay:     time.Second,
		CallTimeout:   time.Second,
		Sleep:         recorder.sleep,
	}, common.DiscardLogger())

	test, err := pipeline.Transcribe(context.Background(), TranscribeRequest{
		StudentName: "Dana",
		Pages:       testPages(1),
		Assignments: []PageAssignment{{QuestionNumber: 1, Pages: []int{0}}},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, client.callsFor("page-0"))
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, recorder.delays)
	require.Len(t, test.Answers, 1)
	assert.False(t, test.Answers[0].Degraded())
	assert.Equal(t, "def push(x): ...", test.Answers[0].AnswerText)
}

// proseFirstClient answers in prose once, then with a valid answers document.
type proseFirstClient struct {
	reply string
	calls atomic.Int32
}

func (c *proseFirstClient) Complete(_ context.Context, _ llm.Request) (string, error) {
	if c.calls.Add(1) == 1 {
		return "Sure! Here is what the student wrote on this page.", nil
	}
	return c.reply, nil
}

func TestTranscribe_CachedMalformedReplyIsRetried(t *testing.T) {
	inner := &proseFirstClient{reply: `{"answers": [
		{"question_number": 1, "answer_text": "x = 1"},
		{"question_number": 2, "answer_text": "y = 2"}]}`}
	client := llm.Cached(inner, time.Hour)
	defer func() { _ = client.Close() }()

	recorder := &sleepRecorder{}
	pipeline := NewPipeline(client, Config{
		MaxConcurrent: 1,
		MaxRetries:    3,
		BaseDelay:     time.Second,
		CallTimeout:   time.Second,
		Sleep:         recorder.sleep,
	}, common.DiscardLogger())

	req := TranscribeRequest{
		Pages: testPages(1),
		Assignments: []PageAssignment{
			{QuestionNumber: 1, Pages: []int{0}},
			{QuestionNumber: 2, Pages: []int{0}},
		},
	}

	test, err := pipeline.Transcribe(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, []time.Duration{time.Second}, recorder.delays)
	require.Len(t, test.Answers, 2)
	for _, a := range test.Answers {
		assert.False(t, a.Degraded())
	}
	assert.Equal(t, "x = 1", test.Answers[0].AnswerText)
	assert.Equal(t, "y = 2", test.Answers[1].AnswerText)

	_, err = pipeline.Transcribe(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load(), "the accepted reply is served from cache")
}

func TestTranscribe_ExhaustedPageIsDegraded(t *testing.T) {
	client := newScriptedClient()
	client.failures["page-0"] = -1
	client.replies["page-1"] = answersJSON(2, "", "return None")

	recorder := &sleepRecorder{}
	pipeline := NewPipeline(client, Config{
		MaxConcurrent: 2,
		Parallel:      true,
		MaxRetries:    2,
		BaseDelay:     time.Second,
		Sleep:         recorder.sleep,
	}, common.DiscardLogger())

	test, err := pipeline.Transcribe(context.Background(), TranscribeRequest{
		Pages: testPages(2),
		Assignments: []PageAssignment{
			{QuestionNumber: 2, Pages: []int{1}},
			{QuestionNumber: 1, Pages: []int{0}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, client.callsFor("page-0"))
	assert.Equal(t, 1, client.callsFor("page-1"))

	require.Len(t, test.Answers, 2)
	assert.Equal(t, 1, test.Answers[0].QuestionNumber)
	assert.True(t, test.Answers[0].Degraded())
	assert.Equal(t, []int{0}, test.Answers[0].DegradedPages)
	assert.Equal(t, DegradedMarker(1), test.Answers[0].AnswerText)

	assert.Equal(t, 2, test.Answers[1].QuestionNumber)
	assert.False(t, test.Answers[1].Degraded())
	assert.Equal(t, "return None", test.Answers[1].AnswerText)
}

func TestTranscribe_ConcurrencyLimits(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantMax int32
		pages   int
	}{
		{name: "sequential", config: Config{Parallel: false, MaxConcurrent: 8}, wantMax: 1, pages: 6},
		{name: "bounded parallel", config: Config{Parallel: true, MaxConcurrent: 2}, wantMax: 2, pages: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newScriptedClient()
			var assignments []PageAssignment
			for i := 0; i < tt.pages; i++ {
				client.replies[fmt.Sprintf("page-%d", i)] = answersJSON(i+1, "", "x")
				assignments = append(assignments, PageAssignment{QuestionNumber: i + 1, Pages: []int{i}})
			}

			pipeline := NewPipeline(client, tt.config, common.DiscardLogger())
			test, err := pipeline.Transcribe(context.Background(), TranscribeRequest{
				Pages:       testPages(tt.pages),
				Assignments: assignments,
			})
			require.NoError(t, err)

			assert.Len(t, test.Answers, tt.pages)
			assert.LessOrEqual(t, client.maxSeen.Load(), tt.wantMax)
		})
	}
}

func TestTranscribe_MultiPageAndSubQuestions(t *testing.T) {
	client := newScriptedClient()
	client.replies["page-0"] = `{"answers": [
		{"question_number": 3, "sub_question_id": "b", "answer_text": "second sub"},
		{"question_number": 3, "sub_question_id": "a", "answer_text": "first sub"}
	]}`
	client.replies["page-1"] = "```json\n" + answersJSON(1, "", "part one") + "\n```"
	client.replies["page-2"] = answersJSON(1, "", "part two")

	pipeline := NewPipeline(client, Config{Parallel: true}, common.DiscardLogger())
	test, err := pipeline.Transcribe(context.Background(), TranscribeRequest{
		StudentName: "Noa",
		Filename:    "noa.pdf",
		Pages:       testPages(3),
		Assignments: []PageAssignment{
			{QuestionNumber: 3, SubQuestionID: "a", Pages: []int{0}},
			{QuestionNumber: 3, SubQuestionID: "b", Pages: []int{0}},
			{QuestionNumber: 1, Pages: []int{2, 1}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Noa", test.StudentName)
	assert.Equal(t, "noa.pdf", test.Filename)
	require.Len(t, test.Answers, 3)

	q1 := test.Answers[0]
	assert.Equal(t, 1, q1.QuestionNumber)
	assert.Equal(t, []int{1, 2}, q1.Pages)
	assert.Equal(t, "--- page 2 ---\n\npart one"+PageSeparator(3)+"part two", q1.AnswerText)

	assert.Equal(t, "a", test.Answers[1].SubQuestionID)
	assert.Equal(t, "first sub", test.Answers[1].AnswerText)
	assert.Equal(t, "b", test.Answers[2].SubQuestionID)
	assert.Equal(t, "second sub", test.Answers[2].AnswerText)
}

func TestTranscribe_PlainTextForSingleAnswerPage(t *testing.T) {
	client := newScriptedClient()
	client.replies["page-0"] = "for i in range(3):\n    print(i)"

	pipeline := NewPipeline(client, Config{}, common.DiscardLogger())
	test, err := pipeline.Transcribe(context.Background(), TranscribeRequest{
		Pages:       testPages(1),
		Assignments: []PageAssignment{{QuestionNumber: 5, Pages: []int{0}}},
	})
	require.NoError(t, err)
	require.Len(t, test.Answers, 1)
	assert.Equal(t, "for i in range(3):\n    print(i)", test.Answers[0].AnswerText)
}

func TestTranscribe_CallTimeoutIsRetried(t *testing.T) {
	client := newScriptedClient()
	client.block = true

	recorder := &sleepRecorder{}
	pipeline := NewPipeline(client, Config{
		CallTimeout: 10 * time.Millisecond,
		MaxRetries:  1,
		BaseDelay:   time.Second,
		Sleep:       recorder.sleep,
	}, common.DiscardLogger())

	test, err := pipeline.Transcribe(context.Background(), TranscribeRequest{
		Pages:       testPages(1),
		Assignments: []PageAssignment{{QuestionNumber: 1, Pages: []int{0}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, client.callsFor("page-0"))
	require.Len(t, test.Answers, 1)
	assert.True(t, test.Answers[0].Degraded())
}

func TestTranscribe_MissingPageIsDegraded(t *testing.T) {
	client := newScriptedClient()
	client.replies["page-0"] = answersJSON(1, "", "text")

	pipeline := NewPipeline(client, Config{}, common.DiscardLogger())
	test, err := pipeline.Transcribe(context.Background(), TranscribeRequest{
		Pages:       testPages(1),
		Assignments: []PageAssignment{{QuestionNumber: 1, Pages: []int{0, 4}}},
	})
	require.NoError(t, err)
	require.Len(t, test.Answers, 1)
	assert.Equal(t, []int{4}, test.Answers[0].DegradedPages)
	assert.True(t, strings.HasSuffix(test.Answers[0].AnswerText, DegradedMarker(5)))
}

func TestTranscribe_CallerCancellation(t *testing.T) {
	client := newScriptedClient()
	client.block = true

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	pipeline := NewPipeline(client, Config{CallTimeout: time.Minute}, common.DiscardLogger())
	_, err := pipeline.Transcribe(ctx, TranscribeRequest{
		Pages:       testPages(2),
		Assignments: []PageAssignment{{QuestionNumber: 1, Pages: []int{0, 1}}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestParsePageResponse_MultiTargetRequiresJSON(t *testing.T) {
	_, err := parsePageResponse("just prose", []PageAssignment{{QuestionNumber: 1}, {QuestionNumber: 2}})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMalformedResponse)
}
