package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

const cases = `{"AAA": {"location": "Alphaland", "data": [
  {"date": "2020-03-01", "new_cases_smoothed": 40},
  {"date": "2020-03-02", "new_cases_smoothed": 80},
  {"date": "2020-03-03", "new_cases_smoothed": 160}
]}}`

func writeData(t *testing.T) string {
	dir := t.TempDir()
	files := map[string]string{
		"owid-covid-data.json": cases,
		"UNSDMethodology.csv":  "Region Name,Sub-region Name,Country or Area,ISO-alpha3 Code\nEurope,Northern Europe,Alphaland,AAA\n",
		"generation_time.json": `[{"mean": 4.7, "standard_deviation": 2.9}]`,
		"matrices/AAA.csv":     ",a,b\na,1,2\nb,2,1\n",
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		convey.So(os.MkdirAll(filepath.Dir(path), 0o755), convey.ShouldBeNil)
		convey.So(os.WriteFile(path, []byte(body), 0o644), convey.ShouldBeNil)
	}
	return dir
}

func TestRun(t *testing.T) {
	convey.Convey("Given a data directory and env configuration", t, func() {
		data := writeData(t)
		out := filepath.Join(t.TempDir(), "out")
		t.Setenv("RNAUGHT_DATA_DIR", data)
		t.Setenv("RNAUGHT_OUTPUT_DIR", out)
		t.Setenv("RNAUGHT_REGRESSOR", "linear")
		t.Setenv("RNAUGHT_MATRIX_DIM", "2")
		t.Setenv("RNAUGHT_EXCLUDES", "[[0]]")
		t.Setenv("RNAUGHT_SQLITE_PATH", "runs.db")

		convey.Convey("When the pipeline runs", func() {
			code := run(context.Background())

			convey.Convey("Then it succeeds and writes every artifact", func() {
				convey.So(code, convey.ShouldEqual, exitOK)
				for _, name := range []string{"slope.csv", "pf_eigenvalue.csv", "code2r0.csv", "metrics.prom", "runs.db", "countries/AAA.dat"} {
					_, err := os.Stat(filepath.Join(out, name))
					convey.So(err, convey.ShouldBeNil)
				}
			})

			convey.Convey("Then the metrics file carries pipeline counters", func() {
				raw, err := os.ReadFile(filepath.Join(out, "metrics.prom"))
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(raw), convey.ShouldContainSubstring, "rnaught_pipeline_countries_processed_total")
			})
		})

		convey.Convey("When an input file is missing", func() {
			t.Setenv("RNAUGHT_CASES_FILE", "absent.json")
			convey.So(run(context.Background()), convey.ShouldEqual, exitFailure)
		})

		convey.Convey("When the configuration is invalid", func() {
			t.Setenv("RNAUGHT_REGRESSOR", "quantum")
			convey.So(run(context.Background()), convey.ShouldEqual, exitConfig)
		})
	})
}
