package typesense

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/ranking"
	"github.com/zatekoja/Clinicalordervalidation/backend/pkg/config"
)

func TestSchemasCoverReferenceCollections(t *testing.T) {
	c := New(&config.TypesenseConfig{URL: "http://localhost:8108", APIKey: "xyz"}, 8)

	names := map[string]*api.CollectionSchema{}
	for _, s := range c.schemas() {
		names[s.Name] = s
	}

	for _, name := range []string{DiagnosisCollection, ProcedureCollection, MappingCollection, DocumentCollection, RareConditionCollection} {
		assert.Contains(t, names, name)
	}

	var embedding *api.Field
	for i, f := range names[RareConditionCollection].Fields {
		if f.Name == "embedding" {
			embedding = &names[RareConditionCollection].Fields[i]
		}
	}
	require.NotNil(t, embedding)
	assert.Equal(t, "float[]", embedding.Type)
	assert.Equal(t, 8, *embedding.NumDim)
}

func TestSchemasDefaultEmbeddingDims(t *testing.T) {
	c := New(&config.TypesenseConfig{URL: "http://localhost:8108"}, 0)
	for _, s := range c.schemas() {
		for _, f := range s.Fields {
			if f.NumDim != nil {
				assert.Equal(t, 1536, *f.NumDim)
			}
		}
	}
}

func TestClient_Integration(t *testing.T) {
	if os.Getenv("TEST_INTEGRATION") != "true" {
		t.Skip("Skipping integration test")
	}

	client, err := NewClient(&config.TypesenseConfig{URL: "http://localhost:8108", APIKey: "xyz"}, 4)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.InitSchema(ctx))

	doc := map[string]interface{}{
		"id":          "R10.13",
		"code":        "R10.13",
		"description": "Right upper quadrant pain",
		"keywords":    []string{"abdominal pain"},
	}
	require.NoError(t, client.UpsertDocument(ctx, DiagnosisCollection, doc))

	got, err := client.RetrieveDocument(ctx, DiagnosisCollection, "R10.13")
	require.NoError(t, err)
	assert.Equal(t, "R10.13", got["code"])

	_, err = client.RetrieveDocument(ctx, DiagnosisCollection, "Z99.99")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	hits, err := client.SearchDocuments(ctx, DiagnosisCollection, &api.SearchCollectionParams{
		Q:       pointer.String("quadrant"),
		QueryBy: pointer.String("description"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestSchemasEnableInfixOnWeightedFields(t *testing.T) {
	c := New(&config.TypesenseConfig{URL: "http://localhost:8108"}, 4)

	for _, schema := range c.schemas() {
		entity := weightedCollections[schema.Name]
		weighted := map[string]bool{}
		for _, fw := range ranking.Weights(entity) {
			weighted[fw.Field] = true
		}

		found := 0
		for _, f := range schema.Fields {
			if weighted[f.Name] {
				found++
				require.NotNil(t, f.Infix, "%s.%s", schema.Name, f.Name)
				assert.True(t, *f.Infix, "%s.%s", schema.Name, f.Name)
				assert.Contains(t, []string{"string", "string[]"}, f.Type)
			} else {
				assert.Nil(t, f.Infix, "%s.%s", schema.Name, f.Name)
			}
		}
		assert.Equal(t, len(weighted), found, "every weighted field of %s is in the schema", schema.Name)
	}
}
