package handlers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/medialib/internal/config"
	"github.com/your-org/medialib/internal/identity"
	"github.com/your-org/medialib/internal/library"
	"github.com/your-org/medialib/internal/models"
)

func TestBuildExportDocument(t *testing.T) {
	resolver := identity.NewResolver(config.Default().Identity, nil)
	registry := library.NewRegistry()

	det := &models.FaceDetection{ID: uuid.New(), AssetID: uuid.New(), Embedding: []float32{1, 0, 0}}
	person := resolver.Resolve(context.Background(), det)
	require.NotNil(t, person)

	asset := &models.MediaAsset{ID: det.AssetID, Filename: "photo.png", Faces: []models.FaceDetection{*det}}
	col := &models.Collection{ID: uuid.New(), Name: "Trip", AssetIDs: []uuid.UUID{asset.ID}}
	registry.AddManual(col)

	doc := BuildExportDocument(resolver, registry, []*models.MediaAsset{asset}, true)

	assert.Equal(t, exportSchemaVersion, doc.SchemaVersion)
	assert.False(t, doc.ExportedAt.IsZero())
	require.Len(t, doc.Assets, 1)
	assert.Equal(t, asset.ID, doc.Assets[0].ID)
	require.Len(t, doc.Collections, 1)
	assert.Equal(t, col.ID, doc.Collections[0].ID)
	require.Len(t, doc.Persons, 1)
	assert.Equal(t, person.ID, doc.Persons[0].ID)
}

func TestBuildExportDocumentWithoutFaces(t *testing.T) {
	resolver := identity.NewResolver(config.Default().Identity, nil)
	registry := library.NewRegistry()

	det := &models.FaceDetection{ID: uuid.New(), AssetID: uuid.New(), Embedding: []float32{0, 1, 0}}
	require.NotNil(t, resolver.Resolve(context.Background(), det))
	asset := &models.MediaAsset{ID: det.AssetID, Faces: []models.FaceDetection{*det}}

	doc := BuildExportDocument(resolver, registry, []*models.MediaAsset{asset}, false)
	assert.Empty(t, doc.Persons)
}
