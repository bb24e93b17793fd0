package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mekassarat_back_end/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const ProductIndex = "products"

// ElasticSearcher indexe et recherche les produits dans Elasticsearch
type ElasticSearcher struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticSearcher(client *elasticsearch.Client) *ElasticSearcher {
	return &ElasticSearcher{client: client, index: ProductIndex}
}

type indexedProduct struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Price       float64  `json:"price"`
	CategoryID  string   `json:"category_id"`
	IsActive    bool     `json:"is_active"`
}

func (e *ElasticSearcher) Index(ctx context.Context, p models.Product) error {
	data, err := json.Marshal(indexedProduct{
		Name:        p.Name,
		Description: p.Description,
		Tags:        p.Tags,
		Price:       p.Price,
		CategoryID:  p.CategoryID.String(),
		IsActive:    p.IsActive,
	})
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: p.ID.String(),
		Body:       bytes.NewReader(data),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("erreur envoi Elastic: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elastic a refusé %s: %s", p.Name, res.String())
	}
	return nil
}

// Search retourne le score de pertinence par identifiant produit
func (e *ElasticSearcher) Search(ctx context.Context, query string, limit int) (map[string]float64, error) {
	var buf bytes.Buffer
	q := map[string]any{
		"size": limit,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"name^3", "tags^2", "description"},
				"fuzziness": "AUTO",
			},
		},
		"_source": false,
	}
	if err := json.NewEncoder(&buf).Encode(q); err != nil {
		return nil, fmt.Errorf("erreur encodage requête: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  &buf,
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("erreur requête Elastic: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.New("index non trouvé ou vide")
	}

	var r struct {
		Hits struct {
			Hits []struct {
				ID    string  `json:"_id"`
				Score float64 `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("erreur décodage JSON: %w", err)
	}

	scores := make(map[string]float64, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		scores[hit.ID] = hit.Score
	}
	return scores, nil
}
