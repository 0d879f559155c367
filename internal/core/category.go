package core

var (
	expenseCategories = []string{
		"Alimentacion",
		"Transporte y/o Gasolina",
		"Compras Casa",
		"Prestamo y Deuda",
		"Compra de Repuestos",
		"Servicios Basicos Luz y Agua",
		"Creditos",
		"Otros Gastos",
	}

	incomeCategories = []string{
		"Sueldo",
		"Servicio Tecnico",
		"Comision Inmobiliaria",
		"Otros Ingresos",
	}

	categoryKind = func() map[string]Kind {
		m := make(map[string]Kind, len(expenseCategories)+len(incomeCategories))
		for _, c := range expenseCategories {
			m[c] = Expense
		}
		for _, c := range incomeCategories {
			m[c] = Income
		}
		return m
	}()
)

// Categories returns the categories allowed for kind, in display order.
func Categories(kind Kind) []string {
	switch kind {
	case Income:
		return append([]string(nil), incomeCategories...)
	case Expense:
		return append([]string(nil), expenseCategories...)
	default:
		return nil
	}
}

// AllCategories returns expense categories followed by income categories.
func AllCategories() []string {
	out := make([]string, 0, len(expenseCategories)+len(incomeCategories))
	out = append(out, expenseCategories...)
	return append(out, incomeCategories...)
}

// IsCategory reports whether name belongs to either enumeration.
func IsCategory(name string) bool {
	_, ok := categoryKind[name]
	return ok
}

// KindOfCategory returns the kind whose enumeration contains name.
func KindOfCategory(name string) (Kind, bool) {
	k, ok := categoryKind[name]
	return k, ok
}

// CategoryAllowed reports whether name is in the enumeration for kind.
func CategoryAllowed(kind Kind, name string) bool {
	k, ok := categoryKind[name]
	return ok && k == kind
}
