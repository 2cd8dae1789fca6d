package etl

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BartekS5/crm-migrate/pkg/utils"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Checkpoint is the resumable position of a job, saved after every page.
type Checkpoint struct {
	Job        string      `json:"job"`
	Cursor     interface{} `json:"cursor"`
	CursorType string      `json:"cursor_type,omitempty"`
	Pages      int         `json:"pages"`
	Total      int64       `json:"total"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// LoadCheckpoint returns the checkpoint saved for job, or nil when there is
// none. A checkpoint written by another job is ignored.
func LoadCheckpoint(filename, job string) (*Checkpoint, error) {
	if filename == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	// UseNumber keeps bigint cursors above 2^53 exact.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var cp Checkpoint
	if err := dec.Decode(&cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", filename, err)
	}
	if cp.Job != job {
		return nil, nil
	}
	cp.Cursor, err = decodeCursor(cp.Cursor, cp.CursorType)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", filename, err)
	}
	return &cp, nil
}

func SaveCheckpoint(filename string, cp Checkpoint) error {
	cp.Cursor, cp.CursorType = encodeCursor(cp.Cursor)
	cp.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filename)
}

func RemoveCheckpoint(filename string) error {
	if filename == "" {
		return nil
	}
	if err := os.Remove(filename); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func encodeCursor(c interface{}) (interface{}, string) {
	switch v := c.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), "time"
	case primitive.ObjectID:
		return v.Hex(), "objectid"
	default:
		return c, ""
	}
}

func decodeCursor(c interface{}, kind string) (interface{}, error) {
	s, _ := c.(string)
	switch kind {
	case "time":
		return time.Parse(time.RFC3339Nano, s)
	case "objectid":
		return primitive.ObjectIDFromHex(s)
	default:
		return utils.NormalizeKey(c), nil
	}
}
