package workingmemory

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"

	"github.com/mandubian/ccos-sub014/hosterr"
)

// jsonlEntry is the on-disk shape of one Entry line: one entry per line.
type jsonlEntry struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Content      string            `json:"content"`
	Tags         []string          `json:"tags"`
	TimestampS   int64             `json:"timestamp_s"`
	ApproxTokens int               `json:"approx_tokens"`
	Meta         map[string]string `json:"meta,omitempty"`
}

func toJSONLEntry(e Entry) jsonlEntry {
	return jsonlEntry{
		ID:           e.ID,
		Title:        e.Title,
		Content:      e.Content,
		Tags:         e.Tags,
		TimestampS:   e.TimestampS,
		ApproxTokens: e.ApproxTokens,
		Meta:         e.Meta,
	}
}

func (j jsonlEntry) toEntry() Entry {
	return Entry{
		ID:           j.ID,
		Title:        j.Title,
		Content:      j.Content,
		Tags:         j.Tags,
		TimestampS:   j.TimestampS,
		ApproxTokens: j.ApproxTokens,
		Meta:         j.Meta,
	}
}

// jsonlSidecar is an append-only JSONL file backing a store's durability.
type jsonlSidecar struct {
	path string
}

func newJSONLSidecar(path string) *jsonlSidecar {
	return &jsonlSidecar{path: path}
}

func (s *jsonlSidecar) appendLine(e Entry) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return hosterr.Wrap(hosterr.InternalError, "workingmemory: failed to open journal for append", err)
	}
	defer f.Close()

	raw, err := json.Marshal(toJSONLEntry(e))
	if err != nil {
		return hosterr.Wrap(hosterr.InternalError, "workingmemory: failed to encode journal entry", err)
	}
	if _, err := f.Write(append(raw, '\n')); err != nil {
		return hosterr.Wrap(hosterr.InternalError, "workingmemory: failed to write journal entry", err)
	}
	return nil
}

// loadAll replays the file in order, tolerating blank lines, per the
// external interface contract that the final in-memory state equals
// replaying every line in file order.
func (s *jsonlSidecar) loadAll() ([]Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, hosterr.Wrap(hosterr.InternalError, "workingmemory: failed to open journal for load", err)
	}
	defer f.Close()

	var out []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var j jsonlEntry
		if err := json.Unmarshal(line, &j); err != nil {
			return nil, hosterr.Wrap(hosterr.InternalError, "workingmemory: failed to decode journal line", err)
		}
		out = append(out, j.toEntry())
	}
	if err := scanner.Err(); err != nil {
		return nil, hosterr.Wrap(hosterr.InternalError, "workingmemory: failed scanning journal", err)
	}
	return out, nil
}

// rewrite truncates the sidecar and writes entries as the new contents,
// used by Flush to drop entries a Prune evicted.
func (s *jsonlSidecar) rewrite(entries []Entry) error {
	f, err := os.OpenFile(s.path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return hosterr.Wrap(hosterr.InternalError, "workingmemory: failed to open journal for rewrite", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range entries {
		raw, err := json.Marshal(toJSONLEntry(e))
		if err != nil {
			return hosterr.Wrap(hosterr.InternalError, "workingmemory: failed to encode journal entry", err)
		}
		if _, err := w.Write(append(raw, '\n')); err != nil {
			return hosterr.Wrap(hosterr.InternalError, "workingmemory: failed to write journal entry", err)
		}
	}
	return w.Flush()
}

