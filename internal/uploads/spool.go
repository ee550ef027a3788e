package uploads

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultExtension se usa cuando el nombre del archivo subido no tiene una extensión conocida.
// Cualquier upload se trata como CSV salvo .xlsx.
const DefaultExtension = ".csv"

// ErrTooLarge se devuelve cuando el archivo supera MaxSize
var ErrTooLarge = errors.New("uploaded file too large")

var knownExtensions = map[string]bool{
	".csv":  true,
	".xlsx": true,
}

// Spool guarda cada submission subida en su propio archivo temporal
type Spool struct {
	Dir     string
	MaxSize int64 // 0 = sin límite
}

// Upload es un archivo spooleado; Release lo elimina
type Upload struct {
	ID           string
	Path         string
	OriginalName string
	Size         int64

	once sync.Once
}

// NewSpool crea el spool y su directorio si no existe
func NewSpool(dir string, maxSize int64) (*Spool, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Spool{Dir: dir, MaxSize: maxSize}, nil
}

// Save copia el archivo subido a una ruta única: submission-<uuid><ext>.
// El llamador debe invocar Release en todos los caminos de salida.
func (s *Spool) Save(header *multipart.FileHeader) (*Upload, error) {
	if s.MaxSize > 0 && header.Size > s.MaxSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, header.Size, s.MaxSize)
	}

	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	return s.SaveReader(header.Filename, src)
}

// SaveReader copia r a una ruta única dentro del spool
func (s *Spool) SaveReader(originalName string, r io.Reader) (*Upload, error) {
	id := uuid.New().String()
	upload := &Upload{
		ID:           id,
		Path:         filepath.Join(s.Dir, "submission-"+id+extension(originalName)),
		OriginalName: originalName,
	}

	// O_EXCL: nunca sobrescribir el archivo de otra petición
	dst, err := os.OpenFile(upload.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}

	if s.MaxSize > 0 {
		r = io.LimitReader(r, s.MaxSize+1)
	}
	n, err := io.Copy(dst, r)
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && s.MaxSize > 0 && n > s.MaxSize {
		err = fmt.Errorf("%w: more than %d bytes", ErrTooLarge, s.MaxSize)
	}
	if err != nil {
		upload.Release()
		return nil, fmt.Errorf("failed to write spool file: %w", err)
	}

	upload.Size = n
	return upload, nil
}

// Release elimina el archivo. Es seguro llamarlo varias veces.
func (u *Upload) Release() {
	u.once.Do(func() {
		if err := os.Remove(u.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("Warning: failed to remove spooled submission %s: %v", u.Path, err)
		}
	})
}

// extension conserva la extensión del archivo original si es conocida
func extension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if knownExtensions[ext] {
		return ext
	}
	return DefaultExtension
}
