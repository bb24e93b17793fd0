package catalog

import (
	"context"
	"strings"
	"time"
	"unicode"

	"mekassarat_back_end/internal/apperr"
	"mekassarat_back_end/internal/models"
	"mekassarat_back_end/internal/pricing"
	"mekassarat_back_end/internal/repository"

	"github.com/gocql/gocql"
	"go.uber.org/zap"
)

type ProductInput struct {
	Name              string                `json:"name"`
	Description       string                `json:"description"`
	Price             float64               `json:"price"`
	WeightOptions     []models.WeightOption `json:"weight_options"`
	CategoryID        string                `json:"category_id"`
	ImageURLs         []string              `json:"image_urls"`
	Tags              []string              `json:"tags"`
	Stock             int                   `json:"stock"`
	TrackQuantity     *bool                 `json:"track_quantity"`
	AllowBackorder    bool                  `json:"allow_backorder"`
	LowStockThreshold int                   `json:"low_stock_threshold"`
	IsFeatured        bool                  `json:"is_featured"`
	IsActive          *bool                 `json:"is_active"`
}

type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	ParentID    string `json:"parent_id"`
}

const (
	StockRestock    = "restock"
	StockAdjustment = "adjustment"
)

// Slugify produit un identifiant lisible à partir d'un nom
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteRune('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func (s *Service) validateInput(ctx context.Context, in ProductInput) (gocql.UUID, error) {
	if strings.TrimSpace(in.Name) == "" {
		return gocql.UUID{}, apperr.New(apperr.Validation, "le nom du produit est obligatoire")
	}
	if in.Stock < 0 {
		return gocql.UUID{}, apperr.New(apperr.Validation, "le stock ne peut pas être négatif")
	}
	if err := pricing.ValidateWeightOptions(in.Price, in.WeightOptions); err != nil {
		return gocql.UUID{}, err
	}
	if in.CategoryID == "" {
		return gocql.UUID{}, apperr.New(apperr.Validation, "le champ 'category_id' est obligatoire")
	}
	categoryID, err := gocql.ParseUUID(in.CategoryID)
	if err != nil {
		return gocql.UUID{}, apperr.New(apperr.Validation, "category_id invalide")
	}
	categories, err := s.categories.ListCategories(ctx)
	if err != nil {
		return gocql.UUID{}, apperr.Wrap(apperr.Internal, err, "lecture des catégories impossible")
	}
	for _, c := range categories {
		if c.ID == categoryID {
			return categoryID, nil
		}
	}
	return gocql.UUID{}, apperr.New(apperr.Validation, "catégorie introuvable")
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	categoryID, err := s.validateInput(ctx, in)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	p := &models.Product{
		ID:            gocql.TimeUUID(),
		Name:          strings.TrimSpace(in.Name),
		Slug:          Slugify(in.Name),
		Description:   in.Description,
		Price:         in.Price,
		WeightOptions: in.WeightOptions,
		CategoryID:    categoryID,
		ImageURLs:     in.ImageURLs,
		Tags:          in.Tags,
		Inventory: models.Inventory{
			Quantity:          in.Stock,
			TrackQuantity:     in.TrackQuantity == nil || *in.TrackQuantity,
			AllowBackorder:    in.AllowBackorder,
			LowStockThreshold: in.LowStockThreshold,
		},
		IsActive:   in.IsActive == nil || *in.IsActive,
		IsFeatured: in.IsFeatured,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.products.SaveProduct(ctx, p); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "création produit impossible")
	}
	s.cache.Invalidate(ctx)
	s.index(ctx, *p)

	zap.L().Info("✅ Produit créé", zap.String("product_id", p.ID.String()), zap.String("name", p.Name))
	return p, nil
}

// UpdateProduct remplace les champs éditables; le stock passe par AdjustStock
func (s *Service) UpdateProduct(ctx context.Context, id string, in ProductInput) (*models.Product, error) {
	pid, err := gocql.ParseUUID(id)
	if err != nil {
		return nil, apperr.New(apperr.ProductNotFound, "produit introuvable")
	}
	p, err := s.products.GetProduct(ctx, pid)
	if err != nil {
		return nil, notFoundOr(err, "lecture produit impossible")
	}
	categoryID, err := s.validateInput(ctx, in)
	if err != nil {
		return nil, err
	}

	p.Name = strings.TrimSpace(in.Name)
	p.Slug = Slugify(in.Name)
	p.Description = in.Description
	p.Price = in.Price
	p.WeightOptions = in.WeightOptions
	p.CategoryID = categoryID
	if in.ImageURLs != nil {
		p.ImageURLs = in.ImageURLs
	}
	p.Tags = in.Tags
	if in.TrackQuantity != nil {
		p.Inventory.TrackQuantity = *in.TrackQuantity
	}
	p.Inventory.AllowBackorder = in.AllowBackorder
	p.Inventory.LowStockThreshold = in.LowStockThreshold
	p.IsFeatured = in.IsFeatured
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	p.UpdatedAt = time.Now()

	if err := s.products.SaveProduct(ctx, p); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "mise à jour produit impossible")
	}
	s.cache.Invalidate(ctx)
	s.index(ctx, *p)
	return p, nil
}

// DeactivateProduct est une suppression logique: les commandes passées gardent leur référence
func (s *Service) DeactivateProduct(ctx context.Context, id string) error {
	pid, err := gocql.ParseUUID(id)
	if err != nil {
		return apperr.New(apperr.ProductNotFound, "produit introuvable")
	}
	p, err := s.products.GetProduct(ctx, pid)
	if err != nil {
		return notFoundOr(err, "lecture produit impossible")
	}
	p.IsActive = false
	p.UpdatedAt = time.Now()
	if err := s.products.SaveProduct(ctx, p); err != nil {
		return apperr.Wrap(apperr.Internal, err, "désactivation produit impossible")
	}
	s.cache.Invalidate(ctx)
	s.index(ctx, *p)
	zap.L().Info("🗑️ Produit désactivé", zap.String("product_id", id))
	return nil
}

// AttachImage ajoute une image déjà téléversée à la fiche produit
func (s *Service) AttachImage(ctx context.Context, id, imageURL string) (*models.Product, error) {
	pid, err := gocql.ParseUUID(id)
	if err != nil {
		return nil, apperr.New(apperr.ProductNotFound, "produit introuvable")
	}
	p, err := s.products.GetProduct(ctx, pid)
	if err != nil {
		return nil, notFoundOr(err, "lecture produit impossible")
	}
	p.ImageURLs = append(p.ImageURLs, imageURL)
	p.UpdatedAt = time.Now()
	if err := s.products.SaveProduct(ctx, p); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "ajout image impossible")
	}
	s.cache.Invalidate(ctx)
	return p, nil
}

func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*models.Category, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperr.New(apperr.Validation, "le nom de la catégorie est obligatoire")
	}
	c := &models.Category{
		ID:          gocql.TimeUUID(),
		Name:        strings.TrimSpace(in.Name),
		Slug:        Slugify(in.Name),
		Description: in.Description,
		ImageURL:    in.ImageURL,
		CreatedAt:   time.Now(),
	}
	if in.ParentID != "" {
		parentID, err := gocql.ParseUUID(in.ParentID)
		if err != nil {
			return nil, apperr.New(apperr.Validation, "parent_id invalide")
		}
		c.ParentID = &parentID
	}
	if err := s.categories.SaveCategory(ctx, c); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "création catégorie impossible")
	}
	return c, nil
}

// AdjustStock applique un réassort (relatif) ou un ajustement (absolu) et trace le mouvement
func (s *Service) AdjustStock(ctx context.Context, id, kind string, quantity int, reason, actor string) (*models.StockMovement, error) {
	pid, err := gocql.ParseUUID(id)
	if err != nil {
		return nil, apperr.New(apperr.ProductNotFound, "produit introuvable")
	}

	var change repository.StockChange
	switch kind {
	case StockRestock:
		if quantity <= 0 {
			return nil, apperr.New(apperr.InvalidQuantity, "la quantité de réassort doit être positive")
		}
		change, err = s.products.Release(ctx, pid, quantity)
	case StockAdjustment:
		if quantity < 0 {
			return nil, apperr.New(apperr.InvalidQuantity, "le stock ne peut pas être négatif")
		}
		change, err = s.products.SetStock(ctx, pid, quantity)
	default:
		return nil, apperr.New(apperr.Validation, "type d'opération invalide")
	}
	if err != nil {
		return nil, notFoundOr(err, "mise à jour du stock impossible")
	}
	s.cache.Invalidate(ctx)

	m := &models.StockMovement{
		ID:        gocql.TimeUUID(),
		ProductID: pid,
		Type:      kind,
		Quantity:  quantity,
		PrevStock: change.Prev,
		NewStock:  change.New,
		Reason:    reason,
		UserID:    actor,
		CreatedAt: time.Now(),
	}
	if err := s.movements.RecordMovement(ctx, m); err != nil {
		zap.L().Warn("⚠️ Erreur enregistrement mouvement stock", zap.Error(err))
	}
	zap.L().Info("✅ Stock mis à jour", zap.String("product_id", id), zap.Int("prev", change.Prev), zap.Int("new", change.New))
	return m, nil
}

func (s *Service) Movements(ctx context.Context, id string, limit int) ([]models.StockMovement, error) {
	pid, err := gocql.ParseUUID(id)
	if err != nil {
		return nil, apperr.New(apperr.ProductNotFound, "produit introuvable")
	}
	if limit <= 0 || limit > MaxLimit {
		limit = 50
	}
	movements, err := s.movements.ListMovements(ctx, pid, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "lecture des mouvements impossible")
	}
	return movements, nil
}

// LowStock liste les produits suivis dont le stock est sous leur seuil d'alerte
func (s *Service) LowStock(ctx context.Context) ([]models.LowStockItem, error) {
	products, err := s.products.ListProducts(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "lecture du catalogue impossible")
	}
	var items []models.LowStockItem
	for _, p := range products {
		inv := p.Inventory
		if !p.IsActive || !inv.TrackQuantity || inv.LowStockThreshold <= 0 {
			continue
		}
		if inv.Quantity <= inv.LowStockThreshold {
			items = append(items, models.LowStockItem{
				ProductID: p.ID,
				Name:      p.Name,
				Quantity:  inv.Quantity,
				Threshold: inv.LowStockThreshold,
			})
		}
	}
	return items, nil
}
