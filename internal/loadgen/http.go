package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/learnmatch/internal/domain/features"
	"github.com/okian/learnmatch/internal/domain/types"
	"github.com/okian/learnmatch/pkg/logger"
)

// Outcome classifies one progress submission.
type Outcome int

// Submission outcomes.
const (
	Accepted Outcome = iota
	Duplicate
	Backpressed
	Failed
)

// Client talks to the service API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client with the given per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// Health returns nil when /healthz answers 200.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Submit posts one progress request.
func (c *Client) Submit(ctx context.Context, req *types.ProgressRequest) Outcome {
	resp, err := c.do(ctx, http.MethodPost, "/progress", req)
	if err != nil {
		return Failed
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusAccepted:
		return Accepted
	case http.StatusOK:
		return Duplicate
	case http.StatusTooManyRequests:
		return Backpressed
	default:
		return Failed
	}
}

// Classification fetches the predicted category of a stored learner. found is
// false when the service has no profile for userID yet.
func (c *Client) Classification(ctx context.Context, userID int64) (cat features.Category, found bool, err error) {
	resp, err := c.do(ctx, http.MethodGet, "/users/"+strconv.FormatInt(userID, 10)+"/classification", nil)
	if err != nil {
		return features.Unknown, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return features.Unknown, false, nil
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return features.Unknown, false, fmt.Errorf("classification of %d returned status %d", userID, resp.StatusCode)
	}

	var body types.ClassificationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return features.Unknown, false, fmt.Errorf("decode classification: %w", err)
	}
	return body.Category, true, nil
}

// submitAll posts every learner with cfg.Workers concurrent workers.
func submitAll(ctx context.Context, c *Client, workers int, learners []Learner, stats *Stats) {
	log := logger.Get()
	log.Info(ctx, "submitting progress", logger.Int("learners", len(learners)), logger.Int("workers", workers))

	var counts [Failed + 1]atomic.Int64
	jobs := make(chan int, workers*2)
	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				counts[c.Submit(ctx, &learners[i].Request)].Add(1)
			}
		}()
	}

feed:
	for i := range learners {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	stats.Accepted = int(counts[Accepted].Load())
	stats.Duplicate = int(counts[Duplicate].Load())
	stats.Backpressed = int(counts[Backpressed].Load())
	stats.Failed = int(counts[Failed].Load())

	log.Info(ctx, "submission completed",
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("backpressed", stats.Backpressed),
		logger.Int("failed", stats.Failed))
}

// verifyAll fetches every learner's classification and counts agreement with
// the generated label.
func verifyAll(ctx context.Context, c *Client, workers int, learners []Learner, stats *Stats) error {
	var classified, agreed, missing atomic.Int64
	var firstErr error
	var errOnce sync.Once

	jobs := make(chan int, workers*2)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				cat, found, err := c.Classification(ctx, learners[i].Request.UserID)
				switch {
				case err != nil:
					errOnce.Do(func() { firstErr = err })
				case !found:
					missing.Add(1)
				default:
					classified.Add(1)
					if cat == learners[i].Label {
						agreed.Add(1)
					}
				}
			}
		}()
	}

feed:
	for i := range learners {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	stats.Classified = int(classified.Load())
	stats.Agreed = int(agreed.Load())
	stats.Missing = int(missing.Load())
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
