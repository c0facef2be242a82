package memory

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// Seed is master data for local runs without the ERP database
type Seed struct {
	TenantID   string          `yaml:"tenantId"`
	FacilityID string          `yaml:"facilityId"`
	Items      []SeedItem      `yaml:"items"`
	Locations  []SeedLocation  `yaml:"locations"`
	Orders     []SeedDocument  `yaml:"orders"`
	Receipts   []SeedDocument  `yaml:"receipts"`
	Production []SeedProdOrder `yaml:"productionOrders"`
}

type SeedItem struct {
	ID            string `yaml:"id"`
	SKU           string `yaml:"sku"`
	Name          string `yaml:"name"`
	PreferredZone string `yaml:"preferredZone"`
	StandardCost  string `yaml:"standardCost"`
	Valuation     string `yaml:"valuation"`
	Currency      string `yaml:"currency"`
}

type SeedLocation struct {
	ID       string `yaml:"id"`
	Code     string `yaml:"code"`
	Type     string `yaml:"type"`
	Zone     string `yaml:"zone"`
	Capacity string `yaml:"capacity"`
}

type SeedDocument struct {
	ID    string     `yaml:"id"`
	Ref   string     `yaml:"ref"`
	Lines []SeedLine `yaml:"lines"`
}

type SeedLine struct {
	ItemID   string `yaml:"itemId"`
	Quantity string `yaml:"quantity"`
	UnitCost string `yaml:"unitCost"`
	LotID    string `yaml:"lotId"`
}

type SeedProdOrder struct {
	ID         string   `yaml:"id"`
	Number     string   `yaml:"number"`
	ItemID     string   `yaml:"itemId"`
	Operations int      `yaml:"operations"`
	Components []string `yaml:"components"`
}

// LoadSeed decodes a YAML seed and loads it into the given stores
func LoadSeed(r io.Reader, catalog *Catalog, documents *Documents, production *ProductionOrders) error {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("failed to decode seed: %w", err)
	}
	tc := tenant.New(seed.TenantID, seed.FacilityID)

	for _, it := range seed.Items {
		cost, err := optional(it.StandardCost)
		if err != nil {
			return fmt.Errorf("item %s: %w", it.ID, err)
		}
		method := domain.ValuationMethod(it.Valuation)
		if method == "" {
			method = domain.DefaultValuationMethod
		}
		item := &domain.Item{
			ID: it.ID, TenantID: tc.TenantID, SKU: it.SKU, Name: it.Name,
			PreferredZone: it.PreferredZone, ValuationMethod: method, Currency: it.Currency,
		}
		if cost != nil {
			item.StandardCost = *cost
		}
		catalog.AddItem(item)
	}

	for _, l := range seed.Locations {
		capacity, err := optional(l.Capacity)
		if err != nil {
			return fmt.Errorf("location %s: %w", l.ID, err)
		}
		catalog.AddLocation(&domain.Location{
			ID: l.ID, TenantID: tc.TenantID, FacilityID: tc.FacilityID, Code: l.Code,
			Type: domain.LocationType(l.Type), Zone: l.Zone, CapacityUnits: capacity,
		})
	}

	for _, doc := range seed.Orders {
		lines := make([]domain.OrderLine, 0, len(doc.Lines))
		for i, l := range doc.Lines {
			qty, err := decimal.NewFromString(l.Quantity)
			if err != nil {
				return fmt.Errorf("order %s line %d: %w", doc.ID, i+1, err)
			}
			lines = append(lines, domain.OrderLine{OrderID: doc.ID, LineID: fmt.Sprint(i + 1), ItemID: l.ItemID, Quantity: qty})
		}
		documents.PutOrder(tc, doc.ID, lines...)
	}

	for _, doc := range seed.Receipts {
		lines := make([]domain.ReceiptLine, 0, len(doc.Lines))
		for i, l := range doc.Lines {
			qty, err := decimal.NewFromString(l.Quantity)
			if err != nil {
				return fmt.Errorf("receipt %s line %d: %w", doc.ID, i+1, err)
			}
			cost, err := optional(l.UnitCost)
			if err != nil {
				return fmt.Errorf("receipt %s line %d: %w", doc.ID, i+1, err)
			}
			line := domain.ReceiptLine{
				ReceiptID: doc.ID, ReceiptRef: doc.Ref, LineID: fmt.Sprint(i + 1),
				ItemID: l.ItemID, ExpectedQuantity: qty, LotID: l.LotID,
			}
			if cost != nil {
				line.UnitCost = *cost
			}
			lines = append(lines, line)
		}
		documents.PutReceipt(tc, doc.ID, lines...)
	}

	for _, mo := range seed.Production {
		production.AddOrder(&domain.ProductionOrder{ID: mo.ID, TenantID: tc.TenantID, Number: mo.Number, ItemID: mo.ItemID},
			mo.Operations, mo.Components...)
	}
	return nil
}

func optional(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
