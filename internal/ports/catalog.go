// Package ports 外部提供的串口清单（本服务不枚举硬件）
package ports

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Port 清单中的一个串口
type Port struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
	BaudRate    int    `yaml:"baudRate" json:"baud_rate,omitempty"`
	Default     bool   `yaml:"-" json:"default"`
}

// Catalog 端口清单
type Catalog struct {
	Ports []Port `yaml:"ports"`
}

// Load 读取 YAML 清单；path 为空时返回空清单
func Load(path string) (*Catalog, error) {
	if path == "" {
		return &Catalog{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ports file: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("unmarshal ports file: %w", err)
	}
	for i, p := range c.Ports {
		if p.Name == "" {
			return nil, fmt.Errorf("ports[%d]: name is required", i)
		}
		if p.BaudRate < 0 {
			return nil, fmt.Errorf("ports[%d] %s: invalid baudRate %d", i, p.Name, p.BaudRate)
		}
	}
	return &c, nil
}

// WithDefault 合并配置中的默认端口（已存在则标记为默认），返回按名称排序的副本
func (c *Catalog) WithDefault(name string, baud int) []Port {
	out := make([]Port, 0, len(c.Ports)+1)
	found := false
	for _, p := range c.Ports {
		if p.Name == name {
			p.Default = true
			found = true
		}
		out = append(out, p)
	}
	if !found && name != "" {
		out = append(out, Port{Name: name, BaudRate: baud, Default: true})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup 按名称查找
func (c *Catalog) Lookup(name string) (Port, bool) {
	for _, p := range c.Ports {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}
