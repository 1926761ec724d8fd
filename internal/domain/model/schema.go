// Пакет model — доменные модели Submission Module.
// schema.go — словарь (dictionary) категории и схемы сущностей,
// получаемые из Submission Registry.
package model

import "strings"

// SchemaField — описание одного поля схемы сущности.
type SchemaField struct {
	// Name — каноническое имя поля
	Name string
	// DisplayName — человекочитаемое имя (колонка в файле), может быть пустым
	DisplayName string
	// Required — поле обязательно для заполнения
	Required bool
}

// Label возвращает имя колонки, под которым поле ожидается в файле:
// DisplayName, если задан, иначе каноническое имя.
func (f SchemaField) Label() string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return f.Name
}

// Schema — схема одной сущности словаря.
type Schema struct {
	Name   string
	Fields []SchemaField
}

// RequiredLabels возвращает имена колонок всех обязательных полей.
func (s *Schema) RequiredLabels() []string {
	var labels []string
	for _, f := range s.Fields {
		if f.Required {
			labels = append(labels, f.Label())
		}
	}
	return labels
}

// Dictionary — активный словарь категории.
type Dictionary struct {
	Name    string
	Version string
	Schemas []Schema
}

// SchemaByEntity ищет схему по имени сущности без учёта регистра.
// Возвращает nil, если схема не найдена.
func (d *Dictionary) SchemaByEntity(entityName string) *Schema {
	if d == nil || entityName == "" {
		return nil
	}
	for i := range d.Schemas {
		if strings.EqualFold(d.Schemas[i].Name, entityName) {
			return &d.Schemas[i]
		}
	}
	return nil
}
