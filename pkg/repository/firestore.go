package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/fabrica/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const recordCollection = "memories"

// Firestore implements Repository on Cloud Firestore. Unlike the sqlite
// backend it can also answer similarity queries natively via FindNearest,
// so deployments on this backend do not need the in-process index.
type Firestore struct {
	client *firestore.Client
}

// storedRecord is the Firestore document layout for a MemoryRecord.
type storedRecord struct {
	Prompt    string             `firestore:"prompt"`
	ImagePath string             `firestore:"image_path"`
	ModelPath string             `firestore:"model_path"`
	Embedding firestore.Vector32 `firestore:"embedding"`
	CreatedAt time.Time          `firestore:"created_at"`
}

// NewFirestore creates a Firestore-backed repository.
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID),
			goerr.V("database", databaseID),
		)
	}

	return &Firestore{client: client}, nil
}

func (r *Firestore) PutRecord(ctx context.Context, record *model.MemoryRecord) error {
	doc := storedRecord{
		Prompt:    record.Prompt,
		ImagePath: record.ImagePath,
		ModelPath: record.ModelPath,
		Embedding: firestore.Vector32(record.Embedding),
		CreatedAt: record.CreatedAt,
	}

	if _, err := r.client.Collection(recordCollection).Doc(string(record.ID)).Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to put record", goerr.V("id", record.ID))
	}
	return nil
}

func (r *Firestore) GetRecord(ctx context.Context, id model.RecordID) (*model.MemoryRecord, error) {
	snap, err := r.client.Collection(recordCollection).Doc(string(id)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, goerr.Wrap(model.ErrRecordNotFound, "no such record", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get record", goerr.V("id", id))
	}

	return decodeSnapshot(id, snap)
}

func (r *Firestore) ListRecords(ctx context.Context, offset, limit int) ([]*model.MemoryRecord, error) {
	iter := r.client.Collection(recordCollection).
		OrderBy("created_at", firestore.Desc).
		Offset(offset).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var records []*model.MemoryRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate records")
		}

		record, err := decodeSnapshot(model.RecordID(snap.Ref.ID), snap)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

func (r *Firestore) ForEachEmbedding(ctx context.Context, fn func(id model.RecordID, embedding []float32) error) error {
	iter := r.client.Collection(recordCollection).
		OrderBy("created_at", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to iterate embeddings")
		}

		record, err := decodeSnapshot(model.RecordID(snap.Ref.ID), snap)
		if err != nil {
			return err
		}
		if len(record.Embedding) == 0 {
			continue
		}
		if err := fn(record.ID, record.Embedding); err != nil {
			return err
		}
	}
}

// SearchSimilarRecords performs a native vector search with cosine distance.
// Only available on the Firestore backend.
func (r *Firestore) SearchSimilarRecords(ctx context.Context, embedding []float32, limit int) ([]*model.MemoryRecord, error) {
	iter := r.client.Collection(recordCollection).
		FindNearest("embedding", firestore.Vector32(embedding), limit, firestore.DistanceMeasureCosine, nil).
		Documents(ctx)
	defer iter.Stop()

	var records []*model.MemoryRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to run vector search")
		}

		record, err := decodeSnapshot(model.RecordID(snap.Ref.ID), snap)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

func (r *Firestore) Close() error {
	if err := r.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close firestore client")
	}
	return nil
}

func decodeSnapshot(id model.RecordID, snap *firestore.DocumentSnapshot) (*model.MemoryRecord, error) {
	var doc storedRecord
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode record", goerr.V("id", id))
	}

	return &model.MemoryRecord{
		ID:        id,
		Prompt:    doc.Prompt,
		ImagePath: doc.ImagePath,
		ModelPath: doc.ModelPath,
		Embedding: []float32(doc.Embedding),
		CreatedAt: doc.CreatedAt,
	}, nil
}
