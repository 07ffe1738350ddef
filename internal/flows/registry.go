package flows

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shaiso/taskmachine/internal/machine"
)

// ErrUnknownWorker — тип воркера не зарегистрирован.
var ErrUnknownWorker = errors.New("unknown worker type")

// Definition — описание типа воркера.
type Definition struct {
	// Name — имя типа; совпадает с именем exchange и очереди.
	Name string

	// Prefetch — prefetch по умолчанию.
	Prefetch int

	// Build строит таблицу переходов.
	Build func() *machine.Table
}

var registry = map[string]Definition{
	PricingWorker: {Name: PricingWorker, Prefetch: 50, Build: PricingTable},
	ReportWorker:  {Name: ReportWorker, Prefetch: 1, Build: ReportTable},
}

// Lookup возвращает описание типа воркера.
func Lookup(name string) (Definition, error) {
	def, ok := registry[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownWorker, name)
	}
	return def, nil
}

// Names возвращает зарегистрированные типы в отсортированном порядке.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
