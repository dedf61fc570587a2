// Package registry описывает известные типы сущностей и политику упорядочивания их коллекций.
package registry

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/iudanet/adminsync/internal/models"
	"github.com/iudanet/adminsync/internal/validation"
)

//go:embed types.yaml
var defaultTypes []byte

// Ordering политика вставки новых записей в коллекцию
type Ordering string

const (
	// OrderNewestFirst новые записи в начале (orders, contacts)
	OrderNewestFirst Ordering = "newest_first"
	// OrderSortField по возрастанию числового поля SortField (каталоги)
	OrderSortField Ordering = "sort_field"
	// OrderInsertion в порядке появления
	OrderInsertion Ordering = "insertion"
)

// TypeSpec описание одного типа сущности
type TypeSpec struct {
	Name      models.EntityType `yaml:"name"`
	Ordering  Ordering          `yaml:"ordering"`
	SortField string            `yaml:"sort_field"`
}

type file struct {
	Types []TypeSpec `yaml:"types"`
}

// Registry неизменяемый набор типов; безопасен для конкурентного чтения
type Registry struct {
	specs map[models.EntityType]TypeSpec
	order []models.EntityType
}

// Default возвращает встроенный набор типов
func Default() *Registry {
	r, err := parse(defaultTypes, nil)
	if err != nil {
		// встроенный файл проверяется тестами
		panic(fmt.Sprintf("invalid embedded types.yaml: %v", err))
	}
	return r
}

// Load читает файл path поверх встроенных типов.
// Записи из файла заменяют встроенные с тем же именем и добавляют новые.
// Пустой path возвращает Default().
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read types file: %w", err)
	}

	return parse(data, Default())
}

// New собирает реестр из списка описаний (удобно для тестов)
func New(specs ...TypeSpec) (*Registry, error) {
	r := &Registry{specs: make(map[models.EntityType]TypeSpec)}
	for _, spec := range specs {
		if err := r.add(spec); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func parse(data []byte, base *Registry) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse types: %w", err)
	}

	r := &Registry{specs: make(map[models.EntityType]TypeSpec)}
	if base != nil {
		for _, name := range base.order {
			r.specs[name] = base.specs[name]
			r.order = append(r.order, name)
		}
	}

	for _, spec := range f.Types {
		if err := r.add(spec); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Registry) add(spec TypeSpec) error {
	if err := validation.ValidateEntityType(string(spec.Name)); err != nil {
		return err
	}
	if spec.Ordering == "" {
		spec.Ordering = OrderInsertion
	}

	switch spec.Ordering {
	case OrderNewestFirst, OrderInsertion:
	case OrderSortField:
		if spec.SortField == "" {
			return fmt.Errorf("type %q: sort_field is required for ordering %q", spec.Name, spec.Ordering)
		}
	default:
		return fmt.Errorf("type %q: unknown ordering %q", spec.Name, spec.Ordering)
	}

	if _, exists := r.specs[spec.Name]; !exists {
		r.order = append(r.order, spec.Name)
	}
	r.specs[spec.Name] = spec
	return nil
}

// Types возвращает все типы в порядке объявления
func (r *Registry) Types() []models.EntityType {
	out := make([]models.EntityType, len(r.order))
	copy(out, r.order)
	return out
}

// Names возвращает отсортированные имена типов (для сообщений об ошибках и справки)
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.order))
	for _, t := range r.order {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return names
}

// Lookup возвращает описание типа
func (r *Registry) Lookup(t models.EntityType) (TypeSpec, bool) {
	spec, ok := r.specs[t]
	return spec, ok
}

// Has проверяет, что тип известен
func (r *Registry) Has(t models.EntityType) bool {
	_, ok := r.specs[t]
	return ok
}
