package ingestion

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/post"
	apperrors "github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/errors"
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), apperrors.ErrMalformedRecord)
}

type csvDecoder struct {
	r          *csv.Reader
	headerDone bool
}

func newCSVDecoder(r io.Reader) *csvDecoder {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.LazyQuotes = true
	return &csvDecoder{r: cr}
}

// Next reads id,timestamp,score rows. The first row is always treated as a
// header.
func (d *csvDecoder) Next() (post.Post, error) {
	for {
		rec, err := d.r.Read()
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				d.headerDone = true
				return post.Post{}, malformed("csv line %d: %v", perr.Line, perr.Err)
			}
			return post.Post{}, err
		}
		if !d.headerDone {
			d.headerDone = true
			continue
		}
		line, _ := d.r.FieldPos(0)
		if len(rec) < 3 {
			return post.Post{}, malformed("csv line %d: %d fields", line, len(rec))
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(rec[1]), 10, 64)
		if err != nil {
			return post.Post{}, malformed("csv line %d: timestamp %q", line, rec[1])
		}
		score, err := strconv.ParseInt(strings.TrimSpace(rec[2]), 10, 32)
		if err != nil {
			return post.Post{}, malformed("csv line %d: score %q", line, rec[2])
		}
		return post.Post{ID: strings.TrimSpace(rec[0]), Timestamp: ts, Score: int32(score)}, nil
	}
}

// record is the JSON shape of one post. created_utc and score may arrive
// as integers, floats or numeric strings.
type record struct {
	ID         string      `json:"id"`
	CreatedUTC json.Number `json:"created_utc"`
	Score      json.Number `json:"score"`
}

func (r record) post() (post.Post, error) {
	if r.ID == "" {
		return post.Post{}, malformed("record without id")
	}
	if r.CreatedUTC == "" {
		return post.Post{}, malformed("record %q without created_utc", r.ID)
	}
	ts, err := r.CreatedUTC.Int64()
	if err != nil {
		f, ferr := r.CreatedUTC.Float64()
		if ferr != nil || f >= math.MaxInt64 || f < math.MinInt64 {
			return post.Post{}, malformed("record %q: created_utc %q", r.ID, r.CreatedUTC)
		}
		ts = int64(f)
	}
	if r.Score == "" {
		return post.Post{}, malformed("record %q without score", r.ID)
	}
	score, err := strconv.ParseInt(r.Score.String(), 10, 32)
	if err != nil {
		return post.Post{}, malformed("record %q: score %q", r.ID, r.Score)
	}
	return post.Post{ID: r.ID, Timestamp: ts, Score: int32(score)}, nil
}

type jsonArrayDecoder struct {
	dec     *json.Decoder
	started bool
	done    bool
}

func newJSONArrayDecoder(r io.Reader) *jsonArrayDecoder {
	return &jsonArrayDecoder{dec: json.NewDecoder(r)}
}

func (d *jsonArrayDecoder) Next() (post.Post, error) {
	if d.done {
		return post.Post{}, io.EOF
	}
	if !d.started {
		tok, err := d.dec.Token()
		if err != nil {
			return post.Post{}, fmt.Errorf("reading json array start: %w", err)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			return post.Post{}, fmt.Errorf("json dataset must be an array, got %v: %w", tok, apperrors.ErrInvalidInput)
		}
		d.started = true
	}
	if !d.dec.More() {
		d.done = true
		if _, err := d.dec.Token(); err != nil {
			return post.Post{}, fmt.Errorf("reading json array end: %w", err)
		}
		return post.Post{}, io.EOF
	}

	var rec record
	if err := d.dec.Decode(&rec); err != nil {
		// The element has been consumed unless the stream itself is broken.
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			return post.Post{}, fmt.Errorf("decoding json element: %w", err)
		}
		return post.Post{}, malformed("json element at offset %d: %v", d.dec.InputOffset(), err)
	}
	return rec.post()
}

type ndjsonDecoder struct {
	sc   *bufio.Scanner
	line int
}

func newNDJSONDecoder(r io.Reader, maxLineBytes int) *ndjsonDecoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(64*1024, maxLineBytes)), maxLineBytes)
	return &ndjsonDecoder{sc: sc}
}

func (d *ndjsonDecoder) Next() (post.Post, error) {
	for d.sc.Scan() {
		d.line++
		line := bytes.TrimSpace(d.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return post.Post{}, malformed("ndjson line %d: %v", d.line, err)
		}
		p, err := rec.post()
		if err != nil {
			return post.Post{}, fmt.Errorf("ndjson line %d: %w", d.line, err)
		}
		return p, nil
	}
	if err := d.sc.Err(); err != nil {
		return post.Post{}, fmt.Errorf("ndjson line %d: %w", d.line+1, err)
	}
	return post.Post{}, io.EOF
}
