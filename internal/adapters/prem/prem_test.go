package prem_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/rnaught/internal/adapters/files"
	"github.com/okian/rnaught/internal/adapters/prem"
	"github.com/okian/rnaught/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	os.Exit(m.Run())
}

const withHeadings = `{
  "Alphaland": [{"X1": 1, "X2": 2, "X3": 3}, {"X1": 4, "X2": 5, "X3": 6}, {"X1": 7, "X2": 8, "X3": 9}],
  "United Kingdom of Great Britain": [{"X1": 1, "X2": 0, "X3": 0}, {"X1": 0, "X2": 1, "X3": 0}, {"X1": 0, "X2": 0, "X3": 1}],
  "Atlantis": [{"X1": 1, "X2": 0, "X3": 0}, {"X1": 0, "X2": 1, "X3": 0}, {"X1": 0, "X2": 0, "X3": 1}]
}`

// Keys of the first row carry the first row's values; key order is significant.
const withoutHeadings = `{
  "Betastan": [{"0.5": 3.5, "0.25": 4.5, "2": 5.5}, {"0.5": 6, "0.25": 7, "2": 8}],
  "MO": [{"1": 0, "0": 0, "0.0": 0}, {"1": 0, "0": 0, "0.0": 0}]
}`

func setup(t *testing.T) (in1, in2, out string) {
	dir := t.TempDir()
	in1 = filepath.Join(dir, "one.json")
	in2 = filepath.Join(dir, "two.json")
	So(os.WriteFile(in1, []byte(withHeadings), 0o644), ShouldBeNil)
	So(os.WriteFile(in2, []byte(withoutHeadings), 0o644), ShouldBeNil)
	return in1, in2, filepath.Join(dir, "matrices")
}

func TestImporter(t *testing.T) {
	Convey("Given both Prem files", t, func() {
		in1, in2, out := setup(t)
		codes := map[string]string{"Alphaland": "AAA", "Betastan": "BBB"}
		im := prem.NewImporter(codes, out)

		res, err := im.Run(context.Background(), in1, in2)
		So(err, ShouldBeNil)

		Convey("Then names resolve through the code table and the fixes", func() {
			So(res.Written, ShouldResemble, []string{"AAA", "GBR", "BBB", "MAC"})
			So(res.Unresolved, ShouldResemble, []string{"Atlantis"})
		})

		Convey("Then a headed matrix keeps its rows and labels", func() {
			cm, err := files.ReadMatrix(filepath.Join(out, "AAA.csv"), "AAA", 3)
			So(err, ShouldBeNil)
			So(cm.Labels, ShouldResemble, []string{"X1", "X2", "X3"})
			So(cm.Data.At(1, 2), ShouldEqual, 6)
		})

		Convey("Then a headless matrix recovers its first row from the keys", func() {
			cm, err := files.ReadMatrix(filepath.Join(out, "BBB.csv"), "BBB", 3)
			So(err, ShouldBeNil)
			So(cm.Labels, ShouldResemble, []string{"X1", "X2", "X3"})
			So(cm.Data.At(0, 0), ShouldEqual, 0.5)
			So(cm.Data.At(0, 1), ShouldEqual, 0.25)
			So(cm.Data.At(0, 2), ShouldEqual, 2)
			So(cm.Data.At(1, 0), ShouldEqual, 3.5)
			So(cm.Data.At(2, 2), ShouldEqual, 8)
		})

		Convey("Then the written files are discoverable", func() {
			found, skipped, err := files.DiscoverMatrices(out)
			So(err, ShouldBeNil)
			So(found, ShouldHaveLength, 4)
			So(skipped, ShouldBeEmpty)
		})
	})

	Convey("Given a headless file imported first", t, func() {
		_, in2, out := setup(t)
		im := prem.NewImporter(nil, out)
		_, err := im.Run(context.Background(), in2, in2)
		So(errors.Is(err, prem.ErrStrataMismatch) || errors.Is(err, prem.ErrNotSquare), ShouldBeTrue)
	})

	Convey("Given a row with a foreign stratum", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "bad.json")
		So(os.WriteFile(path, []byte(`{"A": [{"X1": 1, "X2": 2}, {"X1": 3, "Y": 4}]}`), 0o644), ShouldBeNil)
		_, err := prem.NewImporter(nil, dir).Run(context.Background(), path, path)
		So(errors.Is(err, prem.ErrStrataMismatch), ShouldBeTrue)
	})

	Convey("Given malformed JSON", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "bad.json")
		So(os.WriteFile(path, []byte(`{"A": [{"X1": "one"}]}`), 0o644), ShouldBeNil)
		_, err := prem.NewImporter(nil, dir).Run(context.Background(), path, path)
		So(errors.Is(err, prem.ErrMalformedJSON), ShouldBeTrue)
	})

	Convey("Given sheet names with stray whitespace", t, func() {
		im := prem.NewImporter(nil, t.TempDir())
		code, ok := im.Code("Sao Tome and Principe ")
		So(ok, ShouldBeTrue)
		So(code, ShouldEqual, "STP")
	})
}
