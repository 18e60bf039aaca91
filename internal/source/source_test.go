package source

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/mlready/internal/table"
)

func TestCleanReader(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"bom", append([]byte{0xEF, 0xBB, 0xBF}, "a,b"...), "a,b"},
		{"no bom", []byte("a,b"), "a,b"},
		{"only bom", []byte{0xEF, 0xBB, 0xBF}, ""},
		{"partial bom", []byte{0xEF, 0xBB, 'x'}, "??x"},
		{"invalid byte", []byte{'a', 0xFF, 'b'}, "a?b"},
		{"multibyte", []byte("€1,2 £"), "€1,2 £"},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newCleanReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanReader_TinyReads(t *testing.T) {
	input := "€€ ₹5"
	r := iotest.OneByteReader(newCleanReader(iotest.HalfReader(strings.NewReader(input))))

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, input, string(got))
}

func TestReadCSV(t *testing.T) {
	input := "\xEF\xBB\xBFPrice, Member ,\n" +
		"\"$1,200\",Yes\n" +
		"\n" +
		"$45\n" +
		"bad\xFF,no,\n"

	raw, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"Price", "Member"}, raw.Names())
	assert.Equal(t, 3, raw.Rows())

	price, _ := raw.Cells("Price")
	assert.Equal(t, table.Texts("$1,200", "$45", "bad?"), price)

	member, _ := raw.Cells("Member")
	assert.Equal(t, []table.Cell{table.Text("Yes"), table.Missing(), table.Text("no")}, member)
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("\n  \n"))
	assert.ErrorIs(t, err, ErrNoHeader)

	_, err = ReadCSV(strings.NewReader("a,b\n1,2,3\n"))
	assert.ErrorIs(t, err, ErrRowWidth)

	_, err = ReadCSV(strings.NewReader("a,a\n1,2\n"))
	assert.ErrorIs(t, err, table.ErrDuplicateColumn)
}

func TestReadCSV_BlankHeaderNamed(t *testing.T) {
	raw, err := ReadCSV(strings.NewReader("a,,c\n1,2,3\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "column_2", "c"}, raw.Names())
}

func workbook(t *testing.T) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	t.Cleanup(func() { _ = f.Close() })

	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Price", "Membership"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"$1,200", "Yes"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"$45"}))
	return f
}

func TestReadSheet(t *testing.T) {
	raw, err := ReadSheet(workbook(t), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"Price", "Membership"}, raw.Names())
	member, _ := raw.Cells("Membership")
	assert.Equal(t, []table.Cell{table.Text("Yes"), table.Missing()}, member)

	_, err = ReadSheet(workbook(t), "Nope")
	assert.Error(t, err)
}

func TestRead_Dispatch(t *testing.T) {
	buf, err := workbook(t).WriteToBuffer()
	require.NoError(t, err)

	raw, err := Read("upload.XLSX", buf)
	require.NoError(t, err)
	assert.Equal(t, 2, raw.Rows())

	raw, err = Read("upload.csv", strings.NewReader("x\n1\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, raw.Names())

	_, err = Read("upload.parquet", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
