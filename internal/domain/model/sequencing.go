package model

// SequencingFileMetadata — метаданные одного sequencing-файла,
// переданные клиентом вместе с основным файлом.
type SequencingFileMetadata struct {
	FileName   string `json:"fileName"`
	FileSize   int64  `json:"fileSize"`
	FileMd5sum string `json:"fileMd5sum"`
	FileAccess string `json:"fileAccess"`
	FileType   string `json:"fileType"`
	// Identifier — идентификатор записи, выделенный из имени файла
	Identifier string `json:"-"`
}
