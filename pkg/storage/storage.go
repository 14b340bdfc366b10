package storage

import (
	"context"
	"io"
)

// UploadInput descreve um objeto a arquivar. Size precisa ser o
// tamanho real do Body; o backend usa o valor direto no upload.
type UploadInput struct {
	Key         string
	ContentType string
	Body        io.Reader
	Size        int64
}

// Service é o arquivo de mídia dos anexos recebidos. PutObject devolve
// a URL pública (ou canônica) do objeto gravado.
type Service interface {
	PutObject(ctx context.Context, in UploadInput) (string, error)
}
