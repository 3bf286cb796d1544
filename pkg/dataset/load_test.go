package dataset

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

const sampleTSV = "date\tcampaign_name\tadset_name\tcreative_type\tcreative_message\tspend\timpressions\tclicks\tctr\tpurchases\trevenue\troas\n" +
	"01-03-2025\tSpring Sale\tWomen 25-34\tImage\tSoft cotton, all day\t120.5\t10000\t150\t0.015\t4\t480\t3.98\n" +
	"02-03-2025\tSpring Sale\tWomen 25-34\tVideo\tBreathable comfort\tn/a\t8000\t80\t0.01\t2\t200\t\n"

func TestAnalyst_Dataset_Read(t *testing.T) {
	t.Parallel()

	rows, err := Read(strings.NewReader(sampleTSV), Options{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	require.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), first.Date)
	require.Equal(t, "Spring Sale", first.Campaign)
	require.Equal(t, "Women 25-34", first.AdSet)
	require.Equal(t, "Image", first.CreativeType)
	require.Equal(t, "Soft cotton, all day", first.CreativeMessage)
	require.InDelta(t, 120.5, first.Spend, 1e-9)
	require.InDelta(t, 0.015, first.CTR, 1e-9)

	second := rows[1]
	require.True(t, IsMissing(second.Spend), "non-numeric spend should coerce to missing")
	require.True(t, IsMissing(second.ROAS), "empty roas should coerce to missing")
	require.InDelta(t, 200, second.Revenue, 1e-9)
}

func TestAnalyst_Dataset_Read_DerivesRatesWhenColumnsAbsent(t *testing.T) {
	t.Parallel()

	data := "date,campaign_name,adset_name,spend,impressions,clicks,purchases,revenue\n" +
		"2025-03-01,A,A1,100,1000,20,1,250\n" +
		"2025-03-02,A,A1,0,0,0,0,0\n"

	rows, err := Read(strings.NewReader(data), Options{DateFormat: "%Y-%m-%d", Delimiter: ','})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.InDelta(t, 0.02, rows[0].CTR, 1e-9)
	require.InDelta(t, 2.5, rows[0].ROAS, 1e-9)
	require.Equal(t, 0.0, rows[1].CTR)
	require.Equal(t, 0.0, rows[1].ROAS)
}

func TestAnalyst_Dataset_Read_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{
			name:    "unparseable date",
			data:    "date\tcampaign_name\tadset_name\tspend\timpressions\tclicks\tpurchases\trevenue\n2025/03/01\tA\tA1\t1\t1\t1\t1\t1\n",
			wantErr: ErrInvalidDate,
		},
		{
			name:    "missing column",
			data:    "date\tcampaign_name\tspend\n01-03-2025\tA\t1\n",
			wantErr: ErrMissingColumn,
		},
		{
			name:    "header only",
			data:    "date\tcampaign_name\tadset_name\tspend\timpressions\tclicks\tpurchases\trevenue\n",
			wantErr: ErrEmpty,
		},
		{
			name:    "empty input",
			data:    "",
			wantErr: ErrEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Read(strings.NewReader(tt.data), Options{})
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestAnalyst_Dataset_Read_InvalidDateReportsLine(t *testing.T) {
	t.Parallel()

	data := sampleTSV + "not-a-date\tSpring Sale\tWomen 25-34\tImage\tx\t1\t1\t1\t1\t1\t1\t1\n"
	_, err := Read(strings.NewReader(data), Options{})
	require.ErrorIs(t, err, ErrInvalidDate)
	require.Contains(t, err.Error(), "line 4")
}

func TestAnalyst_Dataset_Load_Gzip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(sampleTSV))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "ads.tsv.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	rows, err := Load(path, Options{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestAnalyst_Dataset_Load_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.tsv"), Options{})
	require.Error(t, err)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestAnalyst_Dataset_Layout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format  string
		want    string
		wantErr bool
	}{
		{format: "%d-%m-%Y", want: "02-01-2006"},
		{format: "%Y-%m-%d %H:%M:%S", want: "2006-01-02 15:04:05"},
		{format: "2006-01-02", want: "2006-01-02"},
		{format: "%d %b %y", want: "02 Jan 06"},
		{format: "%Q", wantErr: true},
		{format: "%d-%", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()
			got, err := Layout(tt.format)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestAnalyst_Dataset_RatioOverflowIsMissing(t *testing.T) {
	t.Parallel()

	require.True(t, IsMissing(ratio(1e308, 1e-10)))
	require.InDelta(t, 0.5, ratio(1, 2), 1e-12)
	require.Equal(t, 0.0, ratio(1, 0))
}
