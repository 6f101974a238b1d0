// Package eventlog keeps the learner's append-only attempt log together with
// the identity it belongs to and the server watermark it was fetched up to.
package eventlog

import (
	"encoding/hex"
	"log/slog"

	"golang.org/x/crypto/blake2b"

	"github.com/montybuilt/MPS-sub000/internal/progress"
)

// Epoch is the watermark of a log that has never been fetched.
const Epoch = "1970-01-01"

// Merge appends incoming to existing without touching either input.
func Merge(existing, incoming []progress.AttemptRecord) []progress.AttemptRecord {
	out := make([]progress.AttemptRecord, 0, len(existing)+len(incoming))
	out = append(out, existing...)
	return append(out, incoming...)
}

// Fingerprint identifies an attempt by question and timestamp.
func Fingerprint(r progress.AttemptRecord) string {
	sum := blake2b.Sum256([]byte(r.QuestionID + "\x00" + r.Timestamp))
	return hex.EncodeToString(sum[:16])
}

// Log is the attempt log of one profile owner.
type Log struct {
	Owner     string                   `json:"owner"`
	Watermark string                   `json:"watermark"`
	Records   []progress.AttemptRecord `json:"records"`

	// Dedupe drops incoming records already present by Fingerprint.
	Dedupe bool `json:"-"`

	seen map[string]struct{}
}

// New returns an empty log for owner.
func New(owner string) *Log {
	return &Log{Owner: owner, Watermark: Epoch}
}

// Bind makes owner the log's identity. If it differs from the current owner
// the log and watermark are reset before anything else is merged. It
// reports whether a reset happened.
func (l *Log) Bind(owner string) bool {
	if l.Owner == owner {
		if l.Watermark == "" {
			l.Watermark = Epoch
		}
		return false
	}
	if l.Owner != "" {
		slog.Info("profile owner changed, resetting attempt log",
			"previous", l.Owner,
			"owner", owner,
			"dropped", len(l.Records),
		)
	}
	l.Owner = owner
	l.Watermark = Epoch
	l.Records = nil
	l.seen = nil
	return true
}

// Apply merges a fetched delta and advances the watermark to the value the
// backend returned. An empty watermark keeps the current one. It returns the
// number of records added.
func (l *Log) Apply(incoming []progress.AttemptRecord, watermark string) int {
	if watermark != "" {
		l.Watermark = watermark
	}
	if !l.Dedupe {
		l.Records = Merge(l.Records, incoming)
		return len(incoming)
	}

	l.index()
	fresh := make([]progress.AttemptRecord, 0, len(incoming))
	for _, r := range incoming {
		fp := Fingerprint(r)
		if _, dup := l.seen[fp]; dup {
			continue
		}
		l.seen[fp] = struct{}{}
		fresh = append(fresh, r)
	}
	if skipped := len(incoming) - len(fresh); skipped > 0 {
		slog.Debug("skipped duplicate attempts", "owner", l.Owner, "count", skipped)
	}
	l.Records = Merge(l.Records, fresh)
	return len(fresh)
}

// Append adds a locally produced attempt.
func (l *Log) Append(r progress.AttemptRecord) {
	if l.seen != nil {
		l.seen[Fingerprint(r)] = struct{}{}
	}
	l.Records = append(l.Records, r)
}

// Len returns the number of records.
func (l *Log) Len() int {
	return len(l.Records)
}

// Snapshot returns a copy of the records.
func (l *Log) Snapshot() []progress.AttemptRecord {
	return append([]progress.AttemptRecord(nil), l.Records...)
}

func (l *Log) index() {
	if l.seen != nil {
		return
	}
	l.seen = make(map[string]struct{}, len(l.Records))
	for _, r := range l.Records {
		l.seen[Fingerprint(r)] = struct{}{}
	}
}
