package repository

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/estatehub/sentinel/internal/models"
)

// OpenSearchConfig configures OpenSearchStore.
type OpenSearchConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Insecure bool   `mapstructure:"insecure" yaml:"insecure"`
	Index    string `mapstructure:"index" yaml:"index"`
}

const eventsMapping = `{
  "mappings": {
    "properties": {
      "id":        {"type": "keyword"},
      "type":      {"type": "keyword"},
      "action":    {"type": "keyword"},
      "actorId":   {"type": "keyword"},
      "targetId":  {"type": "keyword"},
      "priority":  {"type": "keyword"},
      "message":   {"type": "text"},
      "metadata":  {"type": "object", "enabled": false},
      "createdAt": {"type": "date"}
    }
  }
}`

// OpenSearchStore implements EventStore on a single OpenSearch index.
type OpenSearchStore struct {
	client *opensearch.Client
	index  string
}

// NewOpenSearchStore connects, pings and makes sure the index exists.
func NewOpenSearchStore(ctx context.Context, cfg OpenSearchConfig) (*OpenSearchStore, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.Insecure,
			},
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	index := cfg.Index
	if index == "" {
		index = "sentinel-log-events"
	}
	s := &OpenSearchStore{client: client, index: index}

	if err := s.Ping(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *OpenSearchStore) ensureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = s.client.Indices.Create(s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(eventsMapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && !strings.Contains(readBody(res.Body), "resource_already_exists_exception") {
		return fmt.Errorf("opensearch create index error: %s", res.Status())
	}
	return nil
}

func (s *OpenSearchStore) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to ping opensearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("opensearch returned error: %s", res.Status())
	}
	return nil
}

func (s *OpenSearchStore) Close() error { return nil }

func (s *OpenSearchStore) Append(ctx context.Context, ev *models.LogEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// op_type=create keeps redelivered events from overwriting the original.
	res, err := s.client.Create(s.index, ev.ID, bytes.NewReader(body),
		s.client.Create.WithContext(ctx),
		s.client.Create.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("failed to index event: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusConflict {
		return fmt.Errorf("opensearch error: %s - %s", res.Status(), readBody(res.Body))
	}
	return nil
}

func (s *OpenSearchStore) FindByActor(ctx context.Context, q ActorQuery) ([]*models.LogEvent, error) {
	filter := []map[string]interface{}{
		{"term": map[string]interface{}{"actorId": q.ActorID}},
		{"range": map[string]interface{}{"createdAt": map[string]interface{}{"gt": q.Since.UTC().Format(time.RFC3339Nano)}}},
	}
	if q.IncidentsOnly {
		filter = append(filter,
			map[string]interface{}{"terms": map[string]interface{}{"type": []string{"warning", "error"}}},
			map[string]interface{}{"bool": map[string]interface{}{
				"minimum_should_match": 1,
				"should": []map[string]interface{}{
					{"prefix": map[string]interface{}{"action": map[string]interface{}{"value": "auth.", "case_insensitive": true}}},
					{"wildcard": map[string]interface{}{"action": map[string]interface{}{"value": "*login*", "case_insensitive": true}}},
					{"wildcard": map[string]interface{}{"action": map[string]interface{}{"value": "*signup*", "case_insensitive": true}}},
				},
			}},
		)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	return s.search(ctx, map[string]interface{}{
		"query": map[string]interface{}{"bool": map[string]interface{}{"filter": filter}},
		"sort":  []map[string]string{{"createdAt": "desc"}},
		"size":  limit,
	})
}

func (s *OpenSearchStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.LogEvent, error) {
	return s.search(ctx, map[string]interface{}{
		"query": map[string]interface{}{
			"range": map[string]interface{}{"createdAt": map[string]interface{}{"lt": cutoff.UTC().Format(time.RFC3339Nano)}},
		},
		"sort": []map[string]string{{"createdAt": "asc"}, {"id": "asc"}},
		"size": limit,
	})
}

// DeleteBatch issues a single bulk request. Documents that are already gone
// come back as not_found and are not counted.
func (s *OpenSearchStore) DeleteBatch(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	for _, id := range ids {
		line, _ := json.Marshal(map[string]interface{}{
			"delete": map[string]string{"_index": s.index, "_id": id},
		})
		buf.Write(line)
		buf.WriteByte('\n')
	}

	res, err := s.client.Bulk(&buf,
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithRefresh("wait_for"),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk delete: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("opensearch error: %s - %s", res.Status(), readBody(res.Body))
	}

	var result struct {
		Items []map[string]struct {
			Result string `json:"result"`
			Status int    `json:"status"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode bulk response: %w", err)
	}

	deleted := 0
	for _, item := range result.Items {
		if d, ok := item["delete"]; ok && d.Result == "deleted" {
			deleted++
		}
	}
	return deleted, nil
}

func (s *OpenSearchStore) Export(ctx context.Context, collection string, w io.Writer) (int, error) {
	if collection != CollectionLogEvents {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	enc := json.NewEncoder(w)
	total := 0
	var after []interface{}

	for {
		body := map[string]interface{}{
			"query": map[string]interface{}{"match_all": map[string]interface{}{}},
			"sort":  []map[string]string{{"createdAt": "asc"}, {"id": "asc"}},
			"size":  exportPageSize,
		}
		if after != nil {
			body["search_after"] = after
		}

		hits, err := s.searchHits(ctx, body)
		if err != nil {
			return total, err
		}
		for _, h := range hits {
			if err := enc.Encode(h.Source); err != nil {
				return total, fmt.Errorf("failed to encode document %s: %w", h.ID, err)
			}
			total++
		}
		if len(hits) < exportPageSize {
			return total, nil
		}
		after = hits[len(hits)-1].Sort
	}
}

type searchHit struct {
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
	Sort   []interface{}   `json:"sort"`
}

func (s *OpenSearchStore) search(ctx context.Context, body map[string]interface{}) ([]*models.LogEvent, error) {
	hits, err := s.searchHits(ctx, body)
	if err != nil {
		return nil, err
	}

	events := make([]*models.LogEvent, 0, len(hits))
	for _, h := range hits {
		var ev models.LogEvent
		if err := json.Unmarshal(h.Source, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", h.ID, err)
		}
		events = append(events, &ev)
	}
	return events, nil
}

func (s *OpenSearchStore) searchHits(ctx context.Context, body map[string]interface{}) ([]searchHit, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search body: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(bodyBytes)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search events: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("opensearch error: %s - %s", res.Status(), readBody(res.Body))
	}

	var result struct {
		Hits struct {
			Hits []searchHit `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return result.Hits.Hits, nil
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(r)
	return string(b)
}
