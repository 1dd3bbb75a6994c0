package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yumyai/bgcnet/logger"
	"github.com/yumyai/bgcnet/pkg/config"
	"github.com/yumyai/bgcnet/pkg/db"
	"github.com/yumyai/bgcnet/pkg/model"
	"go.uber.org/zap/zapcore"
)

func TestMain(m *testing.M) {
	// Stages log through the shared logger, so it has to exist. Errors only,
	// the warn paths under test would flood the output otherwise.
	if err := logger.InitLogger(zapcore.ErrorLevel); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// writeGBK drops a minimal single-CDS cluster file and returns the CDS
// header its domain table rows have to carry.
func writeGBK(t *testing.T, file, product, tag string) string {
	t.Helper()
	gbk := fmt.Sprintf(`LOCUS       %s 2000 bp DNA
FEATURES             Location/Qualifiers
     cluster         1..2000
                     /product=%q
     CDS             1..300
                     /locus_tag=%q
                     /gene=%q
                     /translation="MKVLAAGTWLLVVPPA"
ORIGIN
//
`, tag, product, tag, tag+"_orf")
	if err := os.WriteFile(file, []byte(gbk), 0o644); err != nil {
		t.Fatal(err)
	}
	return fmt.Sprintf("loc:[0:300](+):gid:%s_orf:pid::loc_tag:%s", tag, tag)
}

func domRow(family, acc, header string, score float64, from, to int) string {
	return fmt.Sprintf("%s %s 378 %s - 320 3.1e-38 131.7 0.0 1 1 1.1e-40 1.8e-36 %.1f 0.0 7 285 33 295 %d %d 0.87 domain of interest",
		family, acc, header, score, from, to)
}

func writeDomtable(t *testing.T, file string, rows ...string) {
	t.Helper()
	content := "# hmmscan domain table\n" + strings.Join(rows, "\n") + "\n"
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// setupRun builds a pipeline over a fresh output folder with a registered
// run, mirroring what main does.
func setupRun(t *testing.T, opts *config.Options) (*Pipeline, *db.Store, *db.WorkDir) {
	t.Helper()
	work, err := db.NewWorkDir(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	if err := work.Prepare(); err != nil {
		t.Fatal(err)
	}
	store, err := db.OpenStore(work.DBFile())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.CreateRun(context.Background(), "run-test", opts.Mode, opts.DistanceConfig()); err != nil {
		t.Fatal(err)
	}
	return New(opts, work, store, "run-test"), store, work
}

func baseOptions(inputDir, mode string) *config.Options {
	return &config.Options{
		InputDir:      inputDir,
		Mode:          mode,
		OverlapCutoff: 0.1,
		JaccardWeight: 0.4,
		DDSWeight:     0.2,
		GKWeight:      0.4,
		Nbhood:        4,
		Cutoffs:       []float64{0},
		Cores:         4,
		SkipHmmscan:   true,
		MafftBin:      "/no/such/mafft",
	}
}

func TestDiscoverSamples(t *testing.T) {
	in := t.TempDir()
	for _, f := range []string{
		"sampleA/clusA1.gbk",
		"sampleA/clusA2.gbk",
		"sampleB/clusB1.gbk",
		"sampleB/genome_final.gbk", // whole-genome export, skipped
		"sampleB/readme.txt",
	} {
		full := filepath.Join(in, f)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	samples, err := discoverSamples(in)
	if err != nil {
		t.Fatalf("discoverSamples: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	if samples[0].name != "sampleA" || len(samples[0].files) != 2 {
		t.Errorf("sampleA = %q with %d files", samples[0].name, len(samples[0].files))
	}
	if samples[1].name != "sampleB" || len(samples[1].files) != 1 {
		t.Errorf("sampleB = %q with %d files, final export should be skipped", samples[1].name, len(samples[1].files))
	}

	t.Run("RootLevelFiles", func(t *testing.T) {
		root := t.TempDir()
		if err := os.WriteFile(filepath.Join(root, "solo.gbk"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		samples, err := discoverSamples(root)
		if err != nil {
			t.Fatalf("discoverSamples: %v", err)
		}
		if len(samples) != 1 || samples[0].name != filepath.Base(root) {
			t.Errorf("root level files should use the folder name, got %+v", samples)
		}
	})

	t.Run("NestedFolders", func(t *testing.T) {
		root := t.TempDir()
		nested := filepath.Join(root, "setX", "strain1")
		if err := os.MkdirAll(nested, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(nested, "c.gbk"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		samples, err := discoverSamples(root)
		if err != nil {
			t.Fatalf("discoverSamples: %v", err)
		}
		if len(samples) != 1 || samples[0].name != "setX_strain1" {
			t.Errorf("nested sample label = %+v, want setX_strain1", samples)
		}
	})

	t.Run("NoFiles", func(t *testing.T) {
		_, err := discoverSamples(t.TempDir())
		if !errors.Is(err, NoClusterFiles) {
			t.Errorf("err = %v, want NoClusterFiles", err)
		}
	})
}

func TestParseClusters(t *testing.T) {
	in := t.TempDir()
	for _, d := range []string{"s1", "s2"} {
		if err := os.Mkdir(filepath.Join(in, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	header := writeGBK(t, filepath.Join(in, "s1", "c1.gbk"), "t1pks", "c1")
	writeGBK(t, filepath.Join(in, "s2", "c1.gbk"), "nrps", "c1dup") // same stem as s1's file
	if err := os.WriteFile(filepath.Join(in, "s1", "broken.gbk"), []byte("not a genbank\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	work, err := db.NewWorkDir(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	if err := work.Prepare(); err != nil {
		t.Fatal(err)
	}

	p := New(baseOptions(in, model.ModeDomainDist), work, nil, "run-test")
	p.samples, err = discoverSamples(in)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.parseClusters(); err != nil {
		t.Fatalf("parseClusters: %v", err)
	}

	if len(p.samples[0].clusters) != 1 || p.samples[0].clusters[0] != "c1" {
		t.Errorf("s1 clusters = %v, broken file should be skipped", p.samples[0].clusters)
	}
	if len(p.samples[1].clusters) != 0 {
		t.Errorf("s2 clusters = %v, duplicate name should be skipped", p.samples[1].clusters)
	}
	if p.groups["c1"] != "t1pks" {
		t.Errorf("group = %q", p.groups["c1"])
	}
	if p.translations["c1"][header] != "MKVLAAGTWLLVVPPA" {
		t.Errorf("translation not recorded under the CDS header")
	}
	if _, err := os.Stat(work.ClusterFasta("c1")); err != nil {
		t.Errorf("cluster fasta not written: %v", err)
	}

	t.Run("Strict", func(t *testing.T) {
		opts := baseOptions(in, model.ModeDomainDist)
		opts.Strict = true
		p := New(opts, work, nil, "run-test")
		p.samples, err = discoverSamples(in)
		if err != nil {
			t.Fatal(err)
		}
		if err := p.parseClusters(); err == nil {
			t.Error("strict run should fail on the broken gbk")
		}
	})
}

func TestWriteDomainFastas(t *testing.T) {
	work, err := db.NewWorkDir(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	if err := work.Prepare(); err != nil {
		t.Fatal(err)
	}

	p := New(baseOptions(".", model.ModeSeqDist), work, nil, "run-test")
	p.samples = []*sample{{name: "s", clusters: []string{"c1"}}}
	p.translations["c1"] = map[string]string{"hdr": "MKVLAAGTWL"}
	p.hits["c1"] = []model.DomainHit{
		{Cluster: "c1", Accession: "PF1", CDS: "hdr", Start: 2, Stop: 5},
		{Cluster: "c1", Accession: "PF1", CDS: "hdr", Start: 6, Stop: 99}, // stop past the end, clamped
		{Cluster: "c1", Accession: "PF2", CDS: "missing", Start: 1, Stop: 3},
	}

	families, err := p.writeDomainFastas()
	if err != nil {
		t.Fatalf("writeDomainFastas: %v", err)
	}
	if len(families["PF1"]) != 2 {
		t.Errorf("PF1 instances = %d, want 2", len(families["PF1"]))
	}
	if _, ok := families["PF2"]; ok {
		t.Errorf("instance without a sequence should be dropped")
	}

	data, err := os.ReadFile(work.DomainFasta("PF1"))
	if err != nil {
		t.Fatal(err)
	}
	want := ">c1_hdr_2_5\nKVLA\n>c1_hdr_6_99\nAGTWL\n"
	if string(data) != want {
		t.Errorf("fasta = %q, want %q", data, want)
	}
}

func TestRunDomainDist(t *testing.T) {
	in := t.TempDir()
	for _, d := range []string{"sampleA", "sampleB"} {
		if err := os.Mkdir(filepath.Join(in, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	hdrA1 := writeGBK(t, filepath.Join(in, "sampleA", "clusA1.gbk"), "t1pks", "cA1")
	hdrA2 := writeGBK(t, filepath.Join(in, "sampleA", "clusA2.gbk"), "t1pks", "cA2")
	hdrB1 := writeGBK(t, filepath.Join(in, "sampleB", "clusB1.gbk"), "nrps", "cB1")

	p, store, work := setupRun(t, baseOptions(in, model.ModeDomainDist))

	// clusA1 and clusA2 carry the same six families, clusB1 is disjoint.
	sixFamilies := func(header string) []string {
		var rows []string
		for i := 1; i <= 6; i++ {
			rows = append(rows, domRow(fmt.Sprintf("fam%d", i), fmt.Sprintf("PF0000%d.5", i), header, 100, i*50+1, i*50+40))
		}
		return rows
	}
	writeDomtable(t, work.Domtable("clusA1"), sixFamilies(hdrA1)...)
	writeDomtable(t, work.Domtable("clusA2"), sixFamilies(hdrA2)...)
	writeDomtable(t, work.Domtable("clusB1"), domRow("other", "PF09999.2", hdrB1, 50, 3, 9))

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	t.Run("ProfileFiles", func(t *testing.T) {
		data, err := os.ReadFile(work.PFSFile("clusA1"))
		if err != nil {
			t.Fatal(err)
		}
		want := "PF00001 PF00002 PF00003 PF00004 PF00005 PF00006\n"
		if string(data) != want {
			t.Errorf("pfs = %q, want %q", data, want)
		}
		if _, err := os.Stat(work.PFDFile("clusB1")); err != nil {
			t.Errorf("pfd missing: %v", err)
		}
	})

	t.Run("PerSampleNetworks", func(t *testing.T) {
		data, err := os.ReadFile(work.NetworkFile(model.ModeDomainDist, "sampleA", 0))
		if err != nil {
			t.Fatal(err)
		}
		want := "clusA1\tclusA2\tt1pks\tt1pks\t0.0000\t0.0000\t1.0000\n"
		if string(data) != want {
			t.Errorf("sampleA network = %q, want %q", data, want)
		}

		data, err = os.ReadFile(work.NetworkFile(model.ModeDomainDist, "sampleB", 0))
		if err != nil {
			t.Fatal(err)
		}
		if len(data) != 0 {
			t.Errorf("single cluster sample should give an empty network, got %q", data)
		}
	})

	t.Run("AllVsAllNetwork", func(t *testing.T) {
		data, err := os.ReadFile(work.NetworkFile(model.ModeDomainDist, AllVsAllLabel, 0))
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		if len(lines) != 3 {
			t.Fatalf("got %d rows, want 3:\n%s", len(lines), data)
		}
		// Identical pair first, then the two disjoint ones in enumeration order.
		if !strings.HasPrefix(lines[0], "clusA1\tclusA2\t") {
			t.Errorf("row 0 = %q", lines[0])
		}
		if !strings.HasPrefix(lines[1], "clusA1\tclusB1\tt1pks\tnrps\t3.76") {
			t.Errorf("row 1 = %q", lines[1])
		}
		if !strings.HasPrefix(lines[2], "clusA2\tclusB1\t") {
			t.Errorf("row 2 = %q", lines[2])
		}
		if !strings.Contains(lines[1], "\t0.9264\t") {
			t.Errorf("disjoint distance not 0.9264 in %q", lines[1])
		}
	})

	t.Run("Store", func(t *testing.T) {
		ctx := context.Background()
		n, err := store.ClusterCount(ctx, "run-test")
		if err != nil || n != 3 {
			t.Errorf("ClusterCount = %d, %v", n, err)
		}
		edges, err := store.EdgeCount(ctx, "run-test", model.ModeDomainDist)
		if err != nil || edges != 3 {
			t.Errorf("EdgeCount = %d, %v", edges, err)
		}
		top, err := store.TopEdges(ctx, "run-test", model.ModeDomainDist, 1)
		if err != nil || len(top) != 1 {
			t.Fatalf("TopEdges = %v, %v", top, err)
		}
		if top[0].ClusterA != "clusA1" || top[0].ClusterB != "clusA2" || top[0].Distance != 0 {
			t.Errorf("closest pair = %+v", top[0])
		}
	})
}

func TestRunSeqDistFallback(t *testing.T) {
	in := t.TempDir()
	if err := os.Mkdir(filepath.Join(in, "sampleX"), 0o755); err != nil {
		t.Fatal(err)
	}
	hdr1 := writeGBK(t, filepath.Join(in, "sampleX", "clusX1.gbk"), "t1pks", "cX1")
	hdr2 := writeGBK(t, filepath.Join(in, "sampleX", "clusX2.gbk"), "t1pks", "cX2")

	p, store, work := setupRun(t, baseOptions(in, model.ModeSeqDist))

	// One shared family plus a singleton. The mafft binary does not exist,
	// so the shared pair falls back to the default dissimilarity.
	writeDomtable(t, work.Domtable("clusX1"),
		domRow("shared", "PF00077.12", hdr1, 100, 2, 8),
		domRow("lonely", "PF00088.3", hdr1, 100, 10, 16))
	writeDomtable(t, work.Domtable("clusX2"),
		domRow("shared", "PF00077.12", hdr2, 100, 3, 9))

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	t.Run("DomainFastas", func(t *testing.T) {
		data, err := os.ReadFile(work.DomainFasta("PF00077"))
		if err != nil {
			t.Fatal(err)
		}
		if got := strings.Count(string(data), ">"); got != 2 {
			t.Errorf("PF00077 fasta has %d records, want 2:\n%s", got, data)
		}
		data, err = os.ReadFile(work.DomainFasta("PF00088"))
		if err != nil {
			t.Fatal(err)
		}
		if got := strings.Count(string(data), ">"); got != 1 {
			t.Errorf("PF00088 fasta has %d records, want 1", got)
		}
	})

	t.Run("FallbackDistance", func(t *testing.T) {
		top, err := store.TopEdges(context.Background(), "run-test", model.ModeSeqDist, 1)
		if err != nil || len(top) != 1 {
			t.Fatalf("TopEdges = %v, %v", top, err)
		}
		e := top[0]
		// Jaccard 1/2, DDS over one fallback pair and one unmatched copy.
		want := 1 - 0.36*0.5 - 0.64*math.Exp(-1.9/2)
		if math.Abs(e.Distance-want) > 1e-9 {
			t.Errorf("Distance = %v, want %v", e.Distance, want)
		}
		if e.Jaccard != 0.5 || e.GK != 0 {
			t.Errorf("sub-scores = %+v", e)
		}
	})

	t.Run("NetworkFiles", func(t *testing.T) {
		for _, label := range []string{"sampleX", AllVsAllLabel} {
			data, err := os.ReadFile(work.NetworkFile(model.ModeSeqDist, label, 0))
			if err != nil {
				t.Fatal(err)
			}
			lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
			if len(lines) != 1 || !strings.HasPrefix(lines[0], "clusX1\tclusX2\t") {
				t.Errorf("%s network = %q", label, data)
			}
		}
	})
}

func TestRunExcludesMalformed(t *testing.T) {
	in := t.TempDir()
	if err := os.Mkdir(filepath.Join(in, "sampleM"), 0o755); err != nil {
		t.Fatal(err)
	}
	hdr := writeGBK(t, filepath.Join(in, "sampleM", "clusM1.gbk"), "t1pks", "cM1")
	writeGBK(t, filepath.Join(in, "sampleM", "clusM2.gbk"), "t1pks", "cM2")

	p, store, work := setupRun(t, baseOptions(in, model.ModeDomainDist))
	writeDomtable(t, work.Domtable("clusM1"), domRow("ok", "PF00001.1", hdr, 100, 2, 8))
	writeDomtable(t, work.Domtable("clusM2"), "short row")

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("non-strict run should survive a bad domain table: %v", err)
	}
	n, err := store.ClusterCount(context.Background(), "run-test")
	if err != nil || n != 1 {
		t.Errorf("ClusterCount = %d, %v, bad cluster should be excluded", n, err)
	}

	t.Run("Strict", func(t *testing.T) {
		opts := baseOptions(in, model.ModeDomainDist)
		opts.Strict = true
		p, _, work := setupRun(t, opts)
		writeDomtable(t, work.Domtable("clusM1"), domRow("ok", "PF00001.1", hdr, 100, 2, 8))
		writeDomtable(t, work.Domtable("clusM2"), "short row")

		err := p.Run(context.Background())
		var malformed *model.MalformedRecordError
		if !errors.As(err, &malformed) {
			t.Errorf("err = %v, want MalformedRecordError", err)
		}
	})
}

func TestRunMissingDomtable(t *testing.T) {
	in := t.TempDir()
	if err := os.Mkdir(filepath.Join(in, "sampleZ"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeGBK(t, filepath.Join(in, "sampleZ", "clusZ1.gbk"), "t1pks", "cZ1")

	p, _, _ := setupRun(t, baseOptions(in, model.ModeDomainDist))

	err := p.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "skip_hmmscan") {
		t.Errorf("err = %v, want missing domain table failure", err)
	}
}
