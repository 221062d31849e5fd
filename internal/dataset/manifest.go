package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// WorkbookSpec names one Excel workbook inside the data directory. An
// empty Sheet means the first sheet of the workbook.
type WorkbookSpec struct {
	File  string `yaml:"file"`
	Sheet string `yaml:"sheet,omitempty"`
}

// Manifest describes where the five retail workbooks live. A YAML
// manifest lets deployments rename files or pin sheets without code
// changes; when no manifest file exists the default layout below is
// used.
type Manifest struct {
	DataDir           string       `yaml:"dataDir"`
	Customers         WorkbookSpec `yaml:"customers"`
	Inventory         WorkbookSpec `yaml:"inventory"`
	OnlineOrders      WorkbookSpec `yaml:"onlineOrders"`
	ProductSales      WorkbookSpec `yaml:"productSales"`
	StoreTransactions WorkbookSpec `yaml:"storeTransactions"`
}

// DefaultManifest returns the conventional workbook layout under dataDir.
func DefaultManifest(dataDir string) Manifest {
	return Manifest{
		DataDir:           dataDir,
		Customers:         WorkbookSpec{File: "Customer-Purchase-History.xlsx"},
		Inventory:         WorkbookSpec{File: "Inventory-Tracking.xlsx"},
		OnlineOrders:      WorkbookSpec{File: "Online-Store-Orders.xlsx"},
		ProductSales:      WorkbookSpec{File: "Product-Sales-Region.xlsx"},
		StoreTransactions: WorkbookSpec{File: "Retail-Store-Transactions.xlsx"},
	}
}

// LoadManifest reads a YAML manifest from path. Workbooks the file does
// not mention keep their default names.
func LoadManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("dataset: reading manifest %s: %w", path, err)
	}

	manifest := DefaultManifest("")
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("dataset: parsing manifest %s: %w", path, err)
	}
	if manifest.DataDir == "" {
		manifest.DataDir = filepath.Dir(path)
	}
	return manifest, nil
}

func (m Manifest) path(spec WorkbookSpec) string {
	return filepath.Join(m.DataDir, spec.File)
}
