package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/fabrica/pkg/model"
	"github.com/m-mizutani/fabrica/pkg/repository"
	"github.com/m-mizutani/gt"
)

func setupFirestore(t *testing.T) *repository.Firestore {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")

	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	repo, err := repository.NewFirestore(context.Background(), projectID, databaseID)
	gt.NoError(t, err)

	return repo
}

func TestFirestorePutAndGetRecord(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	record := &model.MemoryRecord{
		ID:        model.NewRecordID(),
		Prompt:    "a castle floating above the clouds",
		ImagePath: "generated/images/castle.png",
		Embedding: []float32{0.2, 0.4, 0.6},
		CreatedAt: time.Now(),
	}

	gt.NoError(t, repo.PutRecord(ctx, record))

	retrieved, err := repo.GetRecord(ctx, record.ID)
	gt.NoError(t, err)
	gt.V(t, retrieved).NotNil()
	gt.Equal(t, retrieved.Prompt, record.Prompt)
	gt.Equal(t, retrieved.Embedding, record.Embedding)
}

func TestFirestoreGetRecordNotFound(t *testing.T) {
	repo := setupFirestore(t)

	_, err := repo.GetRecord(context.Background(), model.RecordID("non-existent-record"))
	gt.Error(t, err)
}

func TestFirestoreSearchSimilarRecords(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	record := &model.MemoryRecord{
		ID:        model.NewRecordID(),
		Prompt:    "a fox in a snowy forest",
		Embedding: []float32{0.9, 0.1, 0.0},
		CreatedAt: time.Now(),
	}
	gt.NoError(t, repo.PutRecord(ctx, record))

	records, err := repo.SearchSimilarRecords(ctx, record.Embedding, 5)
	gt.NoError(t, err)
	gt.B(t, len(records) >= 1).True()
}
