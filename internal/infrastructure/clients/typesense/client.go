package typesense

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/ranking"
	"github.com/zatekoja/Clinicalordervalidation/backend/pkg/config"
	"github.com/zatekoja/Clinicalordervalidation/backend/pkg/retry"
)

// Collection names in the search tier.
const (
	DiagnosisCollection     = "diagnosis_codes"
	ProcedureCollection     = "procedure_codes"
	MappingCollection       = "code_mappings"
	DocumentCollection      = "reference_documents"
	RareConditionCollection = "rare_conditions"
)

// ErrDocumentNotFound is returned by RetrieveDocument for unknown ids.
var ErrDocumentNotFound = errors.New("typesense document not found")

// Client represents a Typesense client
type Client struct {
	client        *typesense.Client
	embeddingDims int
}

// New creates a Typesense client without a connectivity check.
func New(cfg *config.TypesenseConfig, embeddingDims int) *Client {
	return &Client{
		client: typesense.NewClient(
			typesense.WithServer(cfg.URL),
			typesense.WithAPIKey(cfg.APIKey),
			typesense.WithConnectionTimeout(5*time.Second),
		),
		embeddingDims: embeddingDims,
	}
}

// NewClient creates a new Typesense client with exponential backoff retry
func NewClient(cfg *config.TypesenseConfig, embeddingDims int) (*Client, error) {
	c := New(cfg, embeddingDims)

	err := retry.DoWithLog(
		context.Background(),
		retry.DefaultConfig(),
		"Typesense",
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return c.Health(ctx)
		},
		func(attempt int, err error, nextDelay time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("next_delay", nextDelay).Msg("Typesense connection attempt failed")
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Typesense after retries: %w", err)
	}

	log.Info().Msg("Successfully connected to Typesense")
	return c, nil
}

// Client returns the underlying Typesense client
func (c *Client) Client() *typesense.Client {
	return c.client
}

// Health returns nil when the server reports itself healthy.
func (c *Client) Health(ctx context.Context) error {
	ok, err := c.client.Health(ctx, 2*time.Second)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("typesense reported unhealthy")
	}
	return nil
}

// SearchDocuments runs a search and returns the raw hit documents in rank order.
func (c *Client) SearchDocuments(ctx context.Context, collection string, params *api.SearchCollectionParams) ([]map[string]interface{}, error) {
	result, err := c.client.Collection(collection).Documents().Search(ctx, params)
	if err != nil {
		return nil, err
	}
	if result == nil || result.Hits == nil {
		return nil, nil
	}

	docs := make([]map[string]interface{}, 0, len(*result.Hits))
	for _, hit := range *result.Hits {
		if hit.Document == nil {
			continue
		}
		doc := *hit.Document
		if hit.VectorDistance != nil {
			doc["_vector_distance"] = float64(*hit.VectorDistance)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// RetrieveDocument fetches one document by id.
func (c *Client) RetrieveDocument(ctx context.Context, collection, id string) (map[string]interface{}, error) {
	doc, err := c.client.Collection(collection).Document(id).Retrieve(ctx)
	if err != nil {
		var httpErr *typesense.HTTPError
		if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

// UpsertDocument indexes or replaces a document.
func (c *Client) UpsertDocument(ctx context.Context, collection string, document map[string]interface{}) error {
	_, err := c.client.Collection(collection).Documents().Upsert(ctx, document)
	return err
}

// DropCollection deletes a collection; missing collections are ignored.
func (c *Client) DropCollection(ctx context.Context, collection string) error {
	_, err := c.client.Collection(collection).Delete(ctx)
	var httpErr *typesense.HTTPError
	if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
		return nil
	}
	return err
}

// InitSchema ensures every reference collection exists
func (c *Client) InitSchema(ctx context.Context) error {
	collections, err := c.client.Collections().Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve collections: %w", err)
	}

	existing := make(map[string]struct{}, len(collections))
	for _, col := range collections {
		existing[col.Name] = struct{}{}
	}

	for _, schema := range c.schemas() {
		if _, ok := existing[schema.Name]; ok {
			log.Debug().Str("collection", schema.Name).Msg("Typesense collection already exists")
			continue
		}
		if _, err := c.client.Collections().Create(ctx, schema); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", schema.Name, err)
		}
		log.Info().Str("collection", schema.Name).Msg("Created Typesense collection")
	}
	return nil
}

// weightedCollections names the scored entity stored in each collection.
var weightedCollections = map[string]ranking.Entity{
	DiagnosisCollection:     ranking.EntityDiagnosis,
	ProcedureCollection:     ranking.EntityProcedure,
	MappingCollection:       ranking.EntityMapping,
	DocumentCollection:      ranking.EntityDocument,
	RareConditionCollection: ranking.EntityRareCondition,
}

// schemas returns the collection schemas. Every weighted field is indexed
// for infix search so a term can match inside a word, as ILIKE '%term%' does.
// Collections created before infix was enabled need a reindex with -reset.
func (c *Client) schemas() []*api.CollectionSchema {
	out := c.baseSchemas()
	for _, schema := range out {
		entity, ok := weightedCollections[schema.Name]
		if !ok {
			continue
		}
		weighted := make(map[string]struct{})
		for _, fw := range ranking.Weights(entity) {
			weighted[fw.Field] = struct{}{}
		}
		for i := range schema.Fields {
			if _, ok := weighted[schema.Fields[i].Name]; ok {
				schema.Fields[i].Infix = pointer.True()
			}
		}
	}
	return out
}

func (c *Client) baseSchemas() []*api.CollectionSchema {
	optionalString := func(name string) api.Field {
		return api.Field{Name: name, Type: "string", Optional: pointer.True()}
	}
	optionalStrings := func(name string) api.Field {
		return api.Field{Name: name, Type: "string[]", Optional: pointer.True()}
	}

	dims := c.embeddingDims
	if dims <= 0 {
		dims = 1536
	}

	return []*api.CollectionSchema{
		{
			Name: DiagnosisCollection,
			Fields: []api.Field{
				{Name: "code", Type: "string"},
				{Name: "description", Type: "string"},
				optionalString("clinical_notes"),
				optionalStrings("keywords"),
				optionalStrings("imaging_modalities"),
				{Name: "primary_imaging", Type: "bool", Optional: pointer.True()},
			},
		},
		{
			Name: ProcedureCollection,
			Fields: []api.Field{
				{Name: "code", Type: "string"},
				{Name: "description", Type: "string"},
				{Name: "modality", Type: "string", Facet: pointer.True(), Optional: pointer.True()},
				optionalString("body_part"),
			},
		},
		{
			Name: MappingCollection,
			Fields: []api.Field{
				{Name: "diagnosis_code", Type: "string", Facet: pointer.True()},
				{Name: "procedure_code", Type: "string", Facet: pointer.True()},
				optionalString("justification"),
				optionalString("evidence"),
				optionalString("diagnosis_description"),
				optionalString("procedure_description"),
				{Name: "appropriateness", Type: "float"},
				{Name: "evidence_strength", Type: "float", Optional: pointer.True()},
				{Name: "specialty_relevance", Type: "float", Optional: pointer.True()},
				{Name: "patient_factor", Type: "float", Optional: pointer.True()},
			},
		},
		{
			Name: DocumentCollection,
			Fields: []api.Field{
				{Name: "diagnosis_code", Type: "string", Facet: pointer.True()},
				optionalString("title"),
				{Name: "content", Type: "string"},
				optionalString("diagnosis_description"),
			},
		},
		{
			Name: RareConditionCollection,
			Fields: []api.Field{
				{Name: "code", Type: "string"},
				{Name: "name", Type: "string"},
				{Name: "description", Type: "string"},
				optionalString("symptoms"),
				{Name: "embedding", Type: "float[]", NumDim: pointer.Int(dims), Optional: pointer.True()},
			},
		},
	}
}
