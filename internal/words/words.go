// Package words хранит наборы загаданных слов по длине.
//
// Наборы читаются из встроенных файлов data/words_<n>.txt или из каталога
// с файлами тех же имен. Слово попадает в набор по числу букв,
// из какого бы файла оно ни пришло.
package words

import (
	"bufio"
	"crypto/rand"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path"
	"sort"
	"strings"
	"unicode/utf8"
)

//go:embed data/*.txt
var embedded embed.FS

// ErrUnsupportedLength - для запрошенной длины нет слов
var ErrUnsupportedLength = errors.New("unsupported word length")

// Dictionary хранит наборы слов по числу букв. После загрузки только читается.
type Dictionary struct {
	pools map[int][]string
}

// Load читает встроенные списки слов
func Load() (*Dictionary, error) {
	return loadFS(embedded, "data")
}

// LoadDir читает файлы words_<n>.txt из dir. Пустой dir - встроенные списки
func LoadDir(dir string) (*Dictionary, error) {
	if dir == "" {
		return Load()
	}
	return loadFS(os.DirFS(dir), ".")
}

// New собирает словарь из списков в памяти (тесты и утилиты)
func New(lists ...[]string) *Dictionary {
	d := &Dictionary{pools: make(map[int][]string)}
	for _, l := range lists {
		for _, w := range l {
			d.add(w)
		}
	}
	return d
}

func loadFS(fsys fs.FS, dir string) (*Dictionary, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read word dir: %w", err)
	}
	d := &Dictionary{pools: make(map[int][]string)}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "words_") || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		if err := d.readFile(fsys, path.Join(dir, e.Name())); err != nil {
			return nil, err
		}
	}
	if len(d.pools) == 0 {
		return nil, errors.New("no word lists found")
	}
	return d, nil
}

func (d *Dictionary) readFile(fsys fs.FS, name string) error {
	f, err := fsys.Open(name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		d.add(s)
	}
	return sc.Err()
}

func (d *Dictionary) add(w string) {
	n := utf8.RuneCountInString(w)
	for _, existing := range d.pools[n] {
		if existing == w {
			return
		}
	}
	d.pools[n] = append(d.pools[n], w)
}

// Supports проверяет, есть ли слова длины length
func (d *Dictionary) Supports(length int) bool {
	return len(d.pools[length]) > 0
}

// Lengths возвращает доступные длины по возрастанию
func (d *Dictionary) Lengths() []int {
	out := make([]int, 0, len(d.pools))
	for n := range d.pools {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Size возвращает число слов длины length
func (d *Dictionary) Size(length int) int {
	return len(d.pools[length])
}

// Contains проверяет, есть ли w в словаре
func (d *Dictionary) Contains(w string) bool {
	for _, p := range d.pools[utf8.RuneCountInString(w)] {
		if p == w {
			return true
		}
	}
	return false
}

// Random выбирает случайное слово длины length
func (d *Dictionary) Random(length int) (string, error) {
	pool := d.pools[length]
	if len(pool) == 0 {
		return "", fmt.Errorf("%w: %d", ErrUnsupportedLength, length)
	}
	nBig, err := rand.Int(rand.Reader, big.NewInt(int64(len(pool))))
	if err != nil {
		return "", fmt.Errorf("draw word: %w", err)
	}
	return pool[nBig.Int64()], nil
}

// Restrict возвращает словарь только с длинами lengths.
// Если для какой-то длины нет слов, возвращает ошибку.
func (d *Dictionary) Restrict(lengths ...int) (*Dictionary, error) {
	out := &Dictionary{pools: make(map[int][]string, len(lengths))}
	for _, n := range lengths {
		if !d.Supports(n) {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedLength, n)
		}
		out.pools[n] = d.pools[n]
	}
	return out, nil
}
