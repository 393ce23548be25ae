package basket

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var ErrCrateNotFound = errors.New("basket: crate not found")

type catalogFile struct {
	Crates []crateEntry `yaml:"crates"`
}

type crateEntry struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Stocks      []stockEntry `yaml:"stocks"`
}

type stockEntry struct {
	StockID string   `yaml:"stockId"`
	Symbol  string   `yaml:"symbol"`
	Weight  string   `yaml:"weight"`
	Price   string   `yaml:"price"`
	Tokens  []string `yaml:"tokens"`
}

// Catalog is the read-mostly set of crates served by the node.
type Catalog struct {
	mu     sync.RWMutex
	crates map[string]*Crate
}

func NewCatalog(crates ...*Crate) *Catalog {
	c := &Catalog{crates: make(map[string]*Crate)}
	for _, cr := range crates {
		c.crates[cr.ID] = cr
	}
	return c
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	cat := NewCatalog()
	for _, e := range f.Crates {
		if e.ID == "" {
			return nil, errors.New("parse catalog: crate without id")
		}
		if _, dup := cat.crates[e.ID]; dup {
			return nil, fmt.Errorf("parse catalog: duplicate crate %q", e.ID)
		}
		cr := &Crate{ID: e.ID, Name: e.Name, Description: e.Description}
		for _, s := range e.Stocks {
			w, err := decimal.NewFromString(s.Weight)
			if err != nil {
				return nil, fmt.Errorf("crate %s: weight of %s: %w", e.ID, s.Symbol, err)
			}
			p := decimal.Zero
			if s.Price != "" {
				if p, err = decimal.NewFromString(s.Price); err != nil {
					return nil, fmt.Errorf("crate %s: price of %s: %w", e.ID, s.Symbol, err)
				}
			}
			cr.Constituents = append(cr.Constituents, Constituent{
				StockID: s.StockID,
				Symbol:  s.Symbol,
				Weight:  w,
				Price:   p,
				Tokens:  s.Tokens,
			})
		}
		if err := ValidateWeights(cr.Constituents); err != nil {
			return nil, fmt.Errorf("crate %s: %w", e.ID, err)
		}
		cat.crates[cr.ID] = cr
	}
	return cat, nil
}

func (c *Catalog) Get(id string) (*Crate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cr, ok := c.crates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCrateNotFound, id)
	}
	return cr, nil
}

// List returns crates ordered by id.
func (c *Catalog) List() []*Crate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Crate, 0, len(c.crates))
	for _, cr := range c.crates {
		out = append(out, cr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Put adds or replaces a crate after validating its weights.
func (c *Catalog) Put(cr *Crate) error {
	if err := ValidateWeights(cr.Constituents); err != nil {
		return err
	}
	c.mu.Lock()
	c.crates[cr.ID] = cr
	c.mu.Unlock()
	return nil
}
