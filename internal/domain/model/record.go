package model

// Record — запись, извлечённая из строки загруженного файла:
// каноническое имя поля → строковое значение.
type Record map[string]string

// Clone возвращает копию записи.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
