package expense

import (
	"strconv"
	"strings"

	"github.com/dwizi/wabot/internal/textnorm"
)

const DefaultCategoryName = "Otros"

type Category struct {
	Name     string
	Emoji    string
	Keywords []string
}

// Declaration order matters: the first category with a keyword hit wins.
var categories = []Category{
	{Name: "Alimentación", Emoji: "🍽️", Keywords: []string{"almuerzo", "desayuno", "cena", "comida", "restaurante", "supermercado", "mercado", "panaderia", "fruta", "verdura", "carne", "pollo", "pizza", "hamburguesa", "sushi", "domicilio", "rappi", "onces"}},
	{Name: "Transporte", Emoji: "🚗", Keywords: []string{"uber", "taxi", "bus", "metro", "gasolina", "parqueadero", "peaje", "didi", "transmilenio", "pasaje", "cabify", "sitp", "vuelo"}},
	{Name: "Gastos Hormiga", Emoji: "🐜", Keywords: []string{"cafe", "tinto", "snack", "dulce", "chicle", "gaseosa", "cerveza", "cigarrillo", "helado", "empanada", "galleta", "chocolate", "propina"}},
	{Name: "Vivienda", Emoji: "🏠", Keywords: []string{"arriendo", "renta", "alquiler", "luz", "energia", "acueducto", "gas natural", "internet", "administracion", "hipoteca"}},
	{Name: "Salud", Emoji: "💊", Keywords: []string{"farmacia", "drogueria", "medicina", "medico", "doctor", "odontologo", "dentista", "consulta", "examen", "gimnasio"}},
	{Name: "Entretenimiento", Emoji: "🎬", Keywords: []string{"cine", "netflix", "spotify", "concierto", "teatro", "juego", "fiesta", "discoteca", "disney"}},
	{Name: "Compras", Emoji: "🛍️", Keywords: []string{"ropa", "zapatos", "regalo", "amazon", "centro comercial", "mercadolibre"}},
	{Name: "Educación", Emoji: "📚", Keywords: []string{"curso", "libro", "universidad", "colegio", "matricula", "udemy", "cuaderno"}},
	{Name: "Servicios", Emoji: "📱", Keywords: []string{"celular", "plan de datos", "recarga", "suscripcion", "telefono", "seguro"}},
	{Name: DefaultCategoryName, Emoji: "📦"},
}

// Categories returns the selectable categories in declaration order, the
// default category last.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

func DefaultCategory() Category {
	return categories[len(categories)-1]
}

// LookupCategory resolves a 1-based menu number or a category name.
func LookupCategory(value string) (Category, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Category{}, false
	}
	if index, err := strconv.Atoi(value); err == nil {
		if index < 1 || index > len(categories) {
			return Category{}, false
		}
		return categories[index-1], true
	}
	folded := textnorm.Fold(value)
	for _, category := range categories {
		if textnorm.Fold(category.Name) == folded {
			return category, true
		}
	}
	return Category{}, false
}

// Label renders "🍽️ Alimentación".
func (c Category) Label() string {
	if c.Emoji == "" {
		return c.Name
	}
	return c.Emoji + " " + c.Name
}
