package report

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	adverrors "github.com/arkilian/advisor/internal/errors"
	"github.com/arkilian/advisor/internal/storage"
	"github.com/arkilian/advisor/pkg/types"
)

const (
	archivePrefix = "reports"
	archiveSuffix = ".json.sz"
)

// Archive stores snappy-compressed reports under reports/<table>/<id>.json.sz.
// Ids are UUIDv7, so lexical key order is creation order.
type Archive struct {
	store storage.ObjectStore
}

// NewArchive creates an archive on top of an object store.
func NewArchive(store storage.ObjectStore) *Archive {
	return &Archive{store: store}
}

// Key returns the object key of an archived report.
func Key(table, id string) string {
	return path.Join(archivePrefix, table, id+archiveSuffix)
}

// Save archives a report and returns its key.
func (a *Archive) Save(ctx context.Context, r *types.RecommendationReport) (string, error) {
	if r.Table == "" {
		return "", adverrors.NewInternalError("report without table", nil)
	}
	data, err := Encode(r)
	if err != nil {
		return "", err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", adverrors.NewInternalError("generate report id", err)
	}

	key := Key(r.Table, id.String())
	if err := a.store.Put(ctx, key, snappy.Encode(nil, data)); err != nil {
		return "", adverrors.NewStorageError(adverrors.CodeUploadFailed, "archive report "+key, err)
	}
	log.Printf("report: archived %s (%d bytes)", key, len(data))
	return key, nil
}

// LoadArchived reads an archived report by key.
func (a *Archive) LoadArchived(ctx context.Context, key string) (*types.RecommendationReport, error) {
	compressed, err := a.store.Get(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, adverrors.NewStorageError(adverrors.CodeObjectNotFound, "no archived report "+key, err)
	}
	if err != nil {
		return nil, adverrors.NewStorageError(adverrors.CodeDownloadFailed, "load report "+key, err)
	}
	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, adverrors.NewStorageError(adverrors.CodeDownloadFailed, "decompress report "+key, err)
	}
	return Decode(data)
}

// List returns the keys of a table's archived reports, oldest first.
func (a *Archive) List(ctx context.Context, table string) ([]string, error) {
	keys, err := a.store.List(ctx, path.Join(archivePrefix, table)+"/")
	if err != nil {
		return nil, adverrors.NewStorageError(adverrors.CodeDownloadFailed, "list reports for "+table, err)
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasSuffix(k, archiveSuffix) {
			out = append(out, k)
		}
	}
	return out, nil
}

// Latest returns the most recently archived report of a table.
func (a *Archive) Latest(ctx context.Context, table string) (*types.RecommendationReport, error) {
	keys, err := a.List(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, adverrors.NewStorageError(adverrors.CodeObjectNotFound,
			fmt.Sprintf("no archived report for %s", table), storage.ErrObjectNotFound)
	}
	return a.LoadArchived(ctx, keys[len(keys)-1])
}
