package terrain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// magic открывает каждый закодированный тайл
var magic = []byte("TST1")

// Кодировщик и декодер безопасны для параллельных EncodeAll/DecodeAll
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

// Encode сериализует тайл: JSON, сжатый zstd, с префиксом формата
func Encode(p *Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации тайла: %w", err)
	}

	out := make([]byte, 0, len(magic)+len(raw)/4)
	out = append(out, magic...)
	return encoder.EncodeAll(raw, out), nil
}

// Decode разбирает данные, созданные Encode
func Decode(data []byte) (*Payload, error) {
	if !bytes.HasPrefix(data, magic) {
		return nil, fmt.Errorf("%w: неизвестный формат", ErrCorrupt)
	}

	raw, err := decoder.DecodeAll(data[len(magic):], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &p, nil
}
