package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gapper-terminal/src/helpers"
	"gapper-terminal/src/interfaces"
	"gapper-terminal/src/logger"
	"gapper-terminal/src/models"
	"gapper-terminal/src/network"

	"github.com/google/uuid"
)

const (
	eventStreamType = "text/event-stream"
	maxErrorBody    = 16 * 1024

	// CodeTooManyStreams is the error code the backend uses to refuse extra streams.
	CodeTooManyStreams = "too_many_streams"
)

// -----------------------------------------------------------------------------

// Client is the typed HTTP/SSE client for the card backend.
type Client struct {
	baseURL string
	network interfaces.INetworkManager
	logger  *logger.Logger
	now     func() time.Time
}

// -----------------------------------------------------------------------------

func NewClient(baseURL string, nm interfaces.INetworkManager, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewLogger(nil, "Backend")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		network: nm,
		logger:  log,
		now:     time.Now,
	}
}

// -----------------------------------------------------------------------------

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL + "/api/" + strings.Join(escaped, "/")
}

func requestHeaders(extra map[string]string) map[string]string {
	h := map[string]string{
		"Accept":       "application/json",
		"X-Request-ID": uuid.NewString(),
	}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

// -----------------------------------------------------------------------------

// GetCard performs a conditional card fetch.
func (c *Client) GetCard(ctx context.Context, ticker, etag string) (interfaces.CardResponse, error) {
	extra := map[string]string{}
	if etag != "" {
		extra["If-None-Match"] = etag
	}

	resp, err := c.network.Do(ctx, http.MethodGet, c.endpoint("cards", ticker), nil, requestHeaders(extra))
	if err != nil {
		return interfaces.CardResponse{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return interfaces.CardResponse{NotModified: true, ETag: etag}, nil
	case resp.StatusCode == http.StatusNotFound:
		return interfaces.CardResponse{Missing: true}, nil
	case resp.StatusCode != http.StatusOK:
		return interfaces.CardResponse{}, readServerError(resp)
	}

	var card models.MCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		if isTransportErr(err) {
			return interfaces.CardResponse{}, helpers.NewNetworkError("card body interrupted", err)
		}
		return interfaces.CardResponse{}, &helpers.ServerError{
			TerminalError: helpers.TerminalError{Message: fmt.Sprintf("malformed card for %s", ticker), Cause: err},
			StatusCode:    resp.StatusCode,
			Code:          "invalid_card",
		}
	}
	if card.Ticker == "" {
		card.Ticker = ticker
	}
	if !strings.EqualFold(card.Ticker, ticker) {
		return interfaces.CardResponse{}, &helpers.ServerError{
			TerminalError: helpers.TerminalError{Message: fmt.Sprintf("card for %s returned ticker %s", ticker, card.Ticker)},
			StatusCode:    resp.StatusCode,
			Code:          "invalid_card",
		}
	}
	card.Ticker = strings.ToUpper(card.Ticker)

	return interfaces.CardResponse{Card: &card, ETag: resp.Header.Get("ETag")}, nil
}

// -----------------------------------------------------------------------------

func (c *Client) PostAnalyze(ctx context.Context, ticker string) (models.MActionAck, error) {
	return c.postAction(ctx, ticker, "analyze")
}

func (c *Client) PostPin(ctx context.Context, ticker string) (models.MActionAck, error) {
	return c.postAction(ctx, ticker, "pin")
}

func (c *Client) postAction(ctx context.Context, ticker, action string) (models.MActionAck, error) {
	resp, err := c.network.Do(ctx, http.MethodPost, c.endpoint("tickers", ticker, action), nil, requestHeaders(nil))
	if err != nil {
		return models.MActionAck{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.MActionAck{}, readServerError(resp)
	}

	var ack models.MActionAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil && !errors.Is(err, io.EOF) {
		return models.MActionAck{}, helpers.NewNetworkError(fmt.Sprintf("%s ack unreadable", action), err)
	}
	if ack.Status == "" {
		ack.Status = "ok"
	}
	return ack, nil
}

// -----------------------------------------------------------------------------

// GetTopGappers returns ranked movers, best first.
func (c *Client) GetTopGappers(ctx context.Context, limit int) ([]models.MTopGapper, error) {
	u := c.endpoint("top-gappers")
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}

	resp, err := c.network.Do(ctx, http.MethodGet, u, nil, requestHeaders(nil))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readServerError(resp)
	}

	var rows []models.MTopGapper
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, helpers.NewNetworkError("top gappers unreadable", err)
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	for i := range rows {
		rows[i].Ticker = strings.ToUpper(rows[i].Ticker)
	}
	return rows, nil
}

// -----------------------------------------------------------------------------

// OpenStream performs the SSE handshake and returns the event sequence.
func (c *Client) OpenStream(ctx context.Context) (iter.Seq2[models.MStreamEvent, error], error) {
	resp, err := c.network.Stream(ctx, c.endpoint("stream"), map[string]string{
		"Accept":        eventStreamType,
		"Cache-Control": "no-cache",
		"X-Request-ID":  uuid.NewString(),
	})
	if err != nil {
		return nil, helpers.NewStreamError(models.ReasonNone, "stream handshake failed", err)
	}

	if err := ClassifyHandshake(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return c.events(ctx, resp.Body), nil
}

// -----------------------------------------------------------------------------

func (c *Client) events(ctx context.Context, body io.ReadCloser) iter.Seq2[models.MStreamEvent, error] {
	return func(yield func(models.MStreamEvent, error) bool) {
		defer body.Close()

		// Unblock the reader when ctx ends.
		stop := context.AfterFunc(ctx, func() { body.Close() })
		defer stop()

		reader := network.NewSSEReader(body)
		for {
			name, data, err := reader.ReadEvent()
			if err != nil {
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					return
				}
				yield(models.MStreamEvent{}, helpers.NewNetworkError("stream read failed", err))
				return
			}

			ev, err := network.DecodeEvent(name, data, c.now())
			if err != nil {
				c.logger.Warning("Skipping malformed stream event: %v", err)
				continue
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// -----------------------------------------------------------------------------

// ClassifyHandshake maps a stream handshake response onto a *helpers.StreamError,
// or nil when the stream can be consumed.
func ClassifyHandshake(resp *http.Response) error {
	status := resp.StatusCode

	if status >= 200 && status < 300 {
		mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
		if err != nil || mediaType != eventStreamType {
			return helpers.NewStreamError(models.ReasonInvalidSSEContentType,
				fmt.Sprintf("unexpected stream content type %q", resp.Header.Get("Content-Type")), nil)
		}
		return nil
	}

	srvErr := readServerError(resp)
	switch {
	case status == http.StatusTooManyRequests || srvErr.Code == CodeTooManyStreams:
		return helpers.NewStreamError(models.ReasonTooManyStreams, "backend refused stream", srvErr)
	case status >= 400 && status < 500:
		return helpers.NewStreamError(models.ReasonNonRetryableAPIError, "backend rejected stream", srvErr)
	default:
		return helpers.NewStreamError(models.ReasonNone, "stream handshake failed", srvErr)
	}
}

// -----------------------------------------------------------------------------

// IsTooManyStreamsEvent reports whether an in-stream error event signals the
// per-client stream limit.
func IsTooManyStreamsEvent(ev models.MStreamEvent) bool {
	if ev.EventType != models.EventError || len(ev.Payload) == 0 {
		return false
	}
	var body models.MAPIError
	if err := json.Unmarshal(ev.Payload, &body); err != nil {
		return false
	}
	return body.Code == CodeTooManyStreams
}

// -----------------------------------------------------------------------------

func readServerError(resp *http.Response) *helpers.ServerError {
	var body models.MAPIError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}
	return helpers.NewServerError(resp.StatusCode, body.Code, body.Message)
}

func isTransportErr(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
