// Package catalog expose la lecture filtrée du catalogue et les écritures d'administration.
package catalog

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"mekassarat_back_end/internal/apperr"
	"mekassarat_back_end/internal/cache"
	"mekassarat_back_end/internal/models"
	"mekassarat_back_end/internal/repository"

	"github.com/gocql/gocql"
	"go.uber.org/zap"
)

const (
	DefaultLimit = 12
	MaxLimit     = 100
)

// Searcher classe les produits par pertinence (Elasticsearch en production)
type Searcher interface {
	Search(ctx context.Context, query string, limit int) (map[string]float64, error)
	Index(ctx context.Context, p models.Product) error
}

// ImageSigner transforme une URL d'objet en URL signée temporaire
type ImageSigner interface {
	Sign(ctx context.Context, objectURL string) (string, error)
}

type Filter struct {
	Query    string
	Category string
	MinPrice *float64
	MaxPrice *float64
	Featured *bool
}

type Sort struct {
	Key  string
	Desc bool
}

type ProductPage struct {
	Items      []models.Product `json:"items"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"total_pages"`
}

type Service struct {
	products   repository.ProductStore
	categories repository.CategoryStore
	movements  repository.MovementStore
	cache      *cache.ProductCache
	search     Searcher
	signer     ImageSigner
}

type Option func(*Service)

func WithCache(c *cache.ProductCache) Option { return func(s *Service) { s.cache = c } }

func WithSearcher(se Searcher) Option { return func(s *Service) { s.search = se } }

func WithImageSigner(is ImageSigner) Option { return func(s *Service) { s.signer = is } }

func NewService(products repository.ProductStore, categories repository.CategoryStore, movements repository.MovementStore, opts ...Option) *Service {
	s := &Service{products: products, categories: categories, movements: movements}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClampPage ramène page et limit dans les bornes autorisées
func ClampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// ParseSort accepte price|name|rating|createdAt et asc|desc; clé inconnue = tri par défaut
func ParseSort(key, order string) Sort {
	desc := strings.EqualFold(order, "desc")
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "price":
		return Sort{Key: "price", Desc: desc}
	case "name":
		return Sort{Key: "name", Desc: desc}
	case "rating":
		return Sort{Key: "rating", Desc: desc}
	case "createdat", "created_at", "newest":
		if order == "" {
			desc = true
		}
		return Sort{Key: "createdAt", Desc: desc}
	}
	return Sort{}
}

func (s *Service) allProducts(ctx context.Context) ([]models.Product, error) {
	if cached, ok := s.cache.Products(ctx); ok {
		return cached, nil
	}
	products, err := s.products.ListProducts(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "lecture du catalogue impossible")
	}
	s.cache.SetProducts(ctx, products)
	return products, nil
}

func (s *Service) List(ctx context.Context, f Filter, srt Sort, page, limit int) (*ProductPage, error) {
	page, limit = ClampPage(page, limit)

	products, err := s.allProducts(ctx)
	if err != nil {
		return nil, err
	}

	var categoryIDs map[gocql.UUID]bool
	if f.Category != "" {
		categoryIDs, err = s.resolveCategory(ctx, f.Category)
		if err != nil {
			return nil, err
		}
	}

	var scores map[string]float64
	query := strings.TrimSpace(f.Query)
	if query != "" {
		scores = s.relevance(ctx, query, products)
	}

	matched := make([]models.Product, 0, len(products))
	for _, p := range products {
		if !p.IsActive {
			continue
		}
		if categoryIDs != nil && !categoryIDs[p.CategoryID] {
			continue
		}
		if f.MinPrice != nil && p.Price < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && p.Price > *f.MaxPrice {
			continue
		}
		if f.Featured != nil && p.IsFeatured != *f.Featured {
			continue
		}
		if scores != nil && scores[p.ID.String()] <= 0 {
			continue
		}
		matched = append(matched, p)
	}

	sortProducts(matched, srt, scores)

	total := len(matched)
	start := (page - 1) * limit
	end := start + limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	items := matched[start:end]
	s.signImages(ctx, items)

	return &ProductPage{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

func sortProducts(products []models.Product, srt Sort, scores map[string]float64) {
	less := func(i, j int) bool {
		a, b := products[i], products[j]
		switch srt.Key {
		case "price":
			if srt.Desc {
				return a.Price > b.Price
			}
			return a.Price < b.Price
		case "name":
			if srt.Desc {
				return strings.ToLower(a.Name) > strings.ToLower(b.Name)
			}
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		case "rating":
			if srt.Desc {
				return a.Rating > b.Rating
			}
			return a.Rating < b.Rating
		case "createdAt":
			if srt.Desc {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if scores != nil {
			sa, sb := scores[a.ID.String()], scores[b.ID.String()]
			if sa != sb {
				return sa > sb
			}
		}
		return a.CreatedAt.After(b.CreatedAt)
	}
	sort.SliceStable(products, less)
}

// relevance interroge le moteur de recherche et retombe sur un score local en cas d'échec
func (s *Service) relevance(ctx context.Context, query string, products []models.Product) map[string]float64 {
	if s.search != nil {
		scores, err := s.search.Search(ctx, query, MaxLimit*10)
		if err == nil {
			return scores
		}
		zap.L().Warn("⚠️ Recherche Elasticsearch indisponible, score local", zap.Error(err))
	}
	scores := make(map[string]float64, len(products))
	for _, p := range products {
		scores[p.ID.String()] = LocalScore(query, p)
	}
	return scores
}

// LocalScore pondère les occurrences des termes: nom ×3, tags ×2, description ×1
func LocalScore(query string, p models.Product) float64 {
	name := strings.ToLower(p.Name)
	desc := strings.ToLower(p.Description)
	tags := strings.ToLower(strings.Join(p.Tags, " "))

	var score float64
	for _, term := range strings.Fields(strings.ToLower(query)) {
		score += 3 * float64(strings.Count(name, term))
		score += 2 * float64(strings.Count(tags, term))
		score += float64(strings.Count(desc, term))
	}
	return score
}

func (s *Service) Get(ctx context.Context, id string) (*models.Product, error) {
	pid, err := gocql.ParseUUID(id)
	if err != nil {
		return nil, apperr.New(apperr.ProductNotFound, "produit introuvable")
	}
	p, err := s.products.GetProduct(ctx, pid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.ProductNotFound, "produit introuvable")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "lecture produit impossible")
	}
	if !p.IsActive {
		return nil, apperr.New(apperr.ProductNotFound, "produit introuvable")
	}
	items := []models.Product{*p}
	s.signImages(ctx, items)
	return &items[0], nil
}

// resolveCategory accepte un identifiant, un slug ou un nom et inclut les sous-catégories
func (s *Service) resolveCategory(ctx context.Context, ref string) (map[gocql.UUID]bool, error) {
	categories, err := s.categories.ListCategories(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "lecture des catégories impossible")
	}

	ids := make(map[gocql.UUID]bool)
	if id, err := gocql.ParseUUID(ref); err == nil {
		ids[id] = true
	} else {
		for _, c := range categories {
			if strings.EqualFold(c.Slug, ref) || strings.EqualFold(c.Name, ref) {
				ids[c.ID] = true
			}
		}
	}

	for grew := true; grew; {
		grew = false
		for _, c := range categories {
			if c.ParentID != nil && ids[*c.ParentID] && !ids[c.ID] {
				ids[c.ID] = true
				grew = true
			}
		}
	}
	return ids, nil
}

func (s *Service) Categories(ctx context.Context) ([]models.CategorySummary, error) {
	categories, err := s.categories.ListCategories(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "lecture des catégories impossible")
	}
	products, err := s.allProducts(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[gocql.UUID]int)
	for _, p := range products {
		if p.IsActive {
			counts[p.CategoryID]++
		}
	}
	names := make(map[gocql.UUID]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	summaries := make([]models.CategorySummary, 0, len(categories))
	for _, c := range categories {
		sum := models.CategorySummary{ID: c.ID, Name: c.Name, Slug: c.Slug, Count: counts[c.ID]}
		if c.ParentID != nil {
			sum.Parent = names[*c.ParentID]
		}
		summaries = append(summaries, sum)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries, nil
}

func (s *Service) signImages(ctx context.Context, products []models.Product) {
	if s.signer == nil {
		return
	}
	for i := range products {
		signed := make([]string, 0, len(products[i].ImageURLs))
		for _, u := range products[i].ImageURLs {
			url, err := s.signer.Sign(ctx, u)
			if err != nil {
				zap.L().Warn("⚠️ Signature image impossible", zap.String("url", u), zap.Error(err))
				url = u
			}
			signed = append(signed, url)
		}
		products[i].ImageURLs = signed
	}
}

func (s *Service) index(ctx context.Context, p models.Product) {
	if s.search == nil {
		return
	}
	if err := s.search.Index(ctx, p); err != nil {
		zap.L().Warn("⚠️ Indexation Elasticsearch échouée", zap.String("product", p.Name), zap.Error(err))
	}
}

func notFoundOr(err error, format string, args ...any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.New(apperr.ProductNotFound, "produit introuvable")
	}
	return apperr.Wrap(apperr.Internal, err, format, args...)
}
