package attach

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"
	"testing"
	"time"

	"tryon-compositor/internal/assets"
	"tryon-compositor/internal/catalog"
	"tryon-compositor/internal/pipeline"
	"tryon-compositor/internal/scene"
)

const testCatalog = `
outfits:
  polo: {url: polo}
  tee: {url: tee}
  broken: {url: missing}
  slow: {url: slow}
  bald: {url: bald}
hats:
  dadA:
    url: dadA
    offset: [0, 0.1, 0]
  slowHat: {url: slowHat}
  noHat: {}
backgrounds:
  bg1: {url: bg1.png}
  bad: {url: nope.png}
  noBg: {mode: blur}
`

func outfitModel(name string, withBone bool) *assets.ModelFile {
	children := []assets.NodeSpec{
		{Name: "Body", Kind: "mesh", Material: "skin"},
		{Name: "Head", Kind: "mesh", Material: "skin"},
		{Name: "EyeL", Kind: "mesh", Material: "skin"},
		{Name: "Shirt_Cloth", Kind: "mesh", Material: "shirt"},
		{Name: "Cap", Kind: "mesh", Material: "shirt"},
		{Name: "Pants", Kind: "mesh", Material: "shirt"},
	}
	if withBone {
		children = append(children, assets.NodeSpec{Name: "Armature", Children: []assets.NodeSpec{
			{Name: "Head", Kind: "bone", Position: &[3]float64{0, 1.6, 0}},
		}})
	}
	return &assets.ModelFile{
		Name: name,
		Materials: map[string]assets.MaterialSpec{
			"skin":  {Color: [4]uint8{200, 150, 130, 255}},
			"shirt": {Color: [4]uint8{20, 40, 200, 255}},
		},
		Root: assets.NodeSpec{Name: "__root__", Children: children},
	}
}

func hatModel() *assets.ModelFile {
	return &assets.ModelFile{Root: assets.NodeSpec{Name: "__root__", Children: []assets.NodeSpec{
		{Name: "Brim", Kind: "mesh"},
		{Name: "Crown", Kind: "mesh"},
	}}}
}

type fakeLoader struct {
	mu     sync.Mutex
	models map[string]*assets.ModelFile
	gates  map[string]chan struct{}
	built  map[string][]*scene.Node
	calls  int
}

func newFakeLoader() *fakeLoader {
	l := &fakeLoader{
		models: map[string]*assets.ModelFile{
			"polo":    outfitModel("polo", true),
			"tee":     outfitModel("tee", true),
			"slow":    outfitModel("slow", true),
			"bald":    outfitModel("bald", false),
			"dadA":    hatModel(),
			"slowHat": hatModel(),
		},
		gates: make(map[string]chan struct{}),
		built: make(map[string][]*scene.Node),
	}
	return l
}

func (l *fakeLoader) gate(url string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan struct{})
	l.gates[url] = ch
	return ch
}

func (l *fakeLoader) Load(ctx context.Context, url string) (*scene.Node, error) {
	l.mu.Lock()
	l.calls++
	gate := l.gates[url]
	mf := l.models[url]
	l.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if mf == nil {
		return nil, fmt.Errorf("fetch %s: not found", url)
	}
	root, err := assets.Build(mf)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.built[url] = append(l.built[url], root)
	l.mu.Unlock()
	return root, nil
}

func (l *fakeLoader) roots(url string) []*scene.Node {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*scene.Node(nil), l.built[url]...)
}

type fakeImages map[string]*image.NRGBA

func (f fakeImages) Image(_ context.Context, url string) (*image.NRGBA, error) {
	img, ok := f[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s: not found", url)
	}
	return img, nil
}

type partSink struct {
	mu          sync.Mutex
	patch, keep []uint32
	pushes      int
}

func (p *partSink) SetParts(patch, keep []uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.patch, p.keep = patch, keep
	p.pushes++
}

type fixture struct {
	m      *Manager
	world  *scene.World
	shadow *scene.ShadowMap
	loader *fakeLoader
	parts  *partSink
	bg     *pipeline.BackgroundSwitch
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatal(err)
	}
	shadow := scene.NewShadowMap("sun")
	world := scene.NewWorld(shadow)
	p := pipeline.New(nil)
	bg, err := pipeline.NewBackgroundSwitch(p, pipeline.NewBgReplace(0.1, 0.3, true), pipeline.NewBgBlur(2, 0.4), nil, pipeline.ModeReplace)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{world: world, shadow: shadow, loader: newFakeLoader(), parts: &partSink{}, bg: bg}
	f.m, err = New(Options{
		Catalog:    cat,
		Loader:     f.loader,
		Images:     fakeImages{"bg1.png": image.NewNRGBA(image.Rect(0, 0, 4, 4))},
		Renderer:   world,
		Background: bg,
		Patch:      f.parts,
	})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) outfit() *scene.Node {
	var root *scene.Node
	f.m.Frame(func(v View) error {
		root = v.Outfit()
		return nil
	})
	return root
}

func names(root *scene.Node, ids []uint32) []string {
	byID := make(map[uint32]string)
	root.Walk(func(n *scene.Node) bool {
		byID[n.ID] = n.Name
		return true
	})
	var out []string
	for _, id := range ids {
		out = append(out, byID[id])
	}
	sort.Strings(out)
	return out
}

func TestSetOutfitClassifiesSubmeshes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.m.SetOutfit(ctx, "polo"); err != nil {
		t.Fatalf("SetOutfit: %v", err)
	}
	root := f.outfit()
	if root == nil || !f.world.Attached(root) {
		t.Fatal("outfit not attached")
	}

	body := root.FindByName("Body")
	if body.Material != f.world.OccluderMaterial() {
		t.Error("Body should use the occluder material")
	}
	if root.FindByName("EyeL").Enabled {
		t.Error("EyeL should be hidden")
	}
	shirt := root.FindByName("Shirt_Cloth")
	if !shirt.ReceiveShadows || !f.shadow.Has(shirt) {
		t.Error("visible mesh must receive and cast shadows")
	}
	if f.shadow.Has(body) {
		t.Error("occluder registered as caster")
	}
	// skin is bound to Body, Head and EyeL; EyeL keeps it alive.
	if len(f.world.DisposedMaterials()) != 0 {
		t.Error("material still in use was disposed")
	}
	if got := f.m.State(SlotOutfit); got != StateAttached {
		t.Errorf("state = %s", got)
	}
}

func TestSetOutfitDisposesUnboundMaterial(t *testing.T) {
	f := newFixture(t)
	f.loader.models["solo"] = &assets.ModelFile{
		Materials: map[string]assets.MaterialSpec{"skin": {}},
		Root: assets.NodeSpec{Name: "__root__", Children: []assets.NodeSpec{
			{Name: "Body", Kind: "mesh", Material: "skin"},
		}},
	}
	if err := f.m.SetOutfitURL(context.Background(), "solo", catalog.DefaultRules()); err != nil {
		t.Fatal(err)
	}
	mats := f.world.DisposedMaterials()
	if len(mats) != 1 || mats[0].Name != "skin" {
		t.Errorf("disposed materials = %v", mats)
	}
}

func TestFailedSwapKeepsPreviousOutfit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.m.SetOutfit(ctx, "polo"); err != nil {
		t.Fatal(err)
	}
	before := f.outfit()

	if err := f.m.SetOutfit(ctx, "broken"); err == nil {
		t.Fatal("broken outfit loaded")
	}
	if f.outfit() != before || !f.world.Attached(before) || f.world.Disposed(before) {
		t.Fatal("previous outfit lost after failed swap")
	}
	snap := f.m.Snapshot()
	if snap.Outfit.State != StateAttached || snap.Outfit.ID != "polo" {
		t.Errorf("snapshot = %+v", snap.Outfit)
	}
}

func TestSequentialSwapsReleasePrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := []string{"polo", "tee", "polo", "tee", "polo"}
	var roots []*scene.Node
	for _, id := range ids {
		if err := f.m.SetOutfit(ctx, id); err != nil {
			t.Fatalf("SetOutfit(%s): %v", id, err)
		}
		roots = append(roots, f.outfit())
	}
	if n := len(f.world.Objects()); n != 1 {
		t.Fatalf("attached objects = %d, want 1", n)
	}
	for i, r := range roots[:len(roots)-1] {
		if !f.world.Disposed(r) || f.world.Attached(r) {
			t.Errorf("swap %d: previous outfit not released", i)
		}
		if f.shadow.Has(r.FindByName("Shirt_Cloth")) {
			t.Errorf("swap %d: stale shadow caster", i)
		}
	}
	last := roots[len(roots)-1]
	if f.world.Disposed(last) {
		t.Error("current outfit released")
	}
	if snap := f.m.Snapshot(); snap.Outfit.Instance == "" {
		t.Error("no instance id")
	}
}

func waitState(t *testing.T, m *Manager, s Slot, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for m.State(s) != want {
		select {
		case <-deadline:
			t.Fatalf("%s never reached %s", s, want)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestStaleLoadIsSuperseded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gate := f.loader.gate("slow")

	done := make(chan error, 1)
	go func() { done <- f.m.SetOutfit(ctx, "slow") }()
	waitState(t, f.m, SlotOutfit, StateLoading)

	if err := f.m.SetOutfit(ctx, "tee"); err != nil {
		t.Fatal(err)
	}
	close(gate)

	select {
	case err := <-done:
		if !errors.Is(err, ErrSuperseded) {
			t.Fatalf("stale load returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("slow load never returned")
	}

	if snap := f.m.Snapshot(); snap.Outfit.ID != "tee" {
		t.Errorf("current outfit = %q, want tee", snap.Outfit.ID)
	}
	stale := f.loader.roots("slow")
	if len(stale) != 1 || !f.world.Disposed(stale[0]) || f.world.Attached(stale[0]) {
		t.Error("stale load was not released")
	}
	if n := len(f.world.Objects()); n != 1 {
		t.Errorf("attached objects = %d", n)
	}
}

func TestHatWithoutAnchorIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.m.SetHat(ctx, "dadA"); !errors.Is(err, ErrNoAnchor) {
		t.Fatalf("hat without outfit: %v", err)
	}
	if err := f.m.SetOutfit(ctx, "bald"); err != nil {
		t.Fatal(err)
	}
	calls := f.loader.calls
	if err := f.m.SetHat(ctx, "dadA"); !errors.Is(err, ErrNoAnchor) {
		t.Fatalf("hat on bald outfit: %v", err)
	}
	if f.loader.calls != calls {
		t.Error("hat was loaded although the anchor is missing")
	}
	if f.m.State(SlotHat) != StateEmpty {
		t.Error("hat slot changed")
	}
}

func TestHatFollowsOutfitSwap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.m.SetOutfit(ctx, "polo"); err != nil {
		t.Fatal(err)
	}
	if err := f.m.SetHat(ctx, "dadA"); err != nil {
		t.Fatalf("SetHat: %v", err)
	}
	hat := f.loader.roots("dadA")[0]
	if hat.Parent == nil || hat.Parent.Kind != scene.KindBone || hat.Parent.Name != "Head" {
		t.Fatalf("hat parent = %+v", hat.Parent)
	}
	if hat.Position[1] != 0.1 {
		t.Errorf("hat offset = %v", hat.Position)
	}

	if err := f.m.SetOutfit(ctx, "tee"); err != nil {
		t.Fatal(err)
	}
	tee := f.outfit()
	if hat.Parent != tee.FindBone("Head") {
		t.Error("hat not re-anchored to the new outfit")
	}
	if f.world.Disposed(hat) {
		t.Error("hat released during outfit swap")
	}

	if err := f.m.SetOutfit(ctx, "bald"); err != nil {
		t.Fatal(err)
	}
	if !f.world.Disposed(hat) || f.m.State(SlotHat) != StateEmpty {
		t.Error("hat should be released when the new outfit has no anchor")
	}
}

func TestPatchPartsIncludeHeadwear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.m.SetOutfit(ctx, "polo"); err != nil {
		t.Fatal(err)
	}
	root := f.outfit()
	if got := names(root, f.parts.patch); fmt.Sprint(got) != "[Shirt_Cloth]" {
		t.Errorf("patch without hat = %v", got)
	}
	if got := names(root, f.parts.keep); fmt.Sprint(got) != "[Body Cap Head Pants]" {
		t.Errorf("keep without hat = %v", got)
	}

	if err := f.m.SetHat(ctx, "dadA"); err != nil {
		t.Fatal(err)
	}
	if got := names(root, f.parts.patch); fmt.Sprint(got) != "[Brim Cap Crown Shirt_Cloth]" {
		t.Errorf("patch with hat = %v", got)
	}
	if got := names(root, f.parts.keep); fmt.Sprint(got) != "[Body Head Pants]" {
		t.Errorf("keep with hat = %v", got)
	}

	var pushed bool
	f.m.Frame(func(v View) error {
		pushed = v.EnsurePatchParts()
		return nil
	})
	if pushed {
		t.Error("patch parts already include the hat; nothing to push")
	}

	if err := f.m.SetHat(ctx, "noHat"); err != nil {
		t.Fatal(err)
	}
	if got := names(root, f.parts.patch); fmt.Sprint(got) != "[Shirt_Cloth]" {
		t.Errorf("patch after hat removal = %v", got)
	}
}

func TestUnknownIDsPreserveState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.m.SetOutfit(ctx, "polo"); err != nil {
		t.Fatal(err)
	}
	for _, err := range []error{
		f.m.SetOutfit(ctx, "kilt"),
		f.m.SetHat(ctx, "crown"),
		f.m.SetBackground(ctx, "moon"),
	} {
		if !errors.Is(err, ErrUnknownAsset) || !errors.Is(err, catalog.ErrUnknownID) {
			t.Errorf("err = %v", err)
		}
	}
	if snap := f.m.Snapshot(); snap.Outfit.ID != "polo" || snap.Outfit.State != StateAttached {
		t.Errorf("state changed: %+v", snap.Outfit)
	}
}

func TestBackgroundSlotAndMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.m.SetBackground(ctx, "noBg"); err != nil {
		t.Fatal(err)
	}
	if f.bg.Mode() != pipeline.ModeBlur {
		t.Fatalf("mode = %s, want blur", f.bg.Mode())
	}

	if err := f.m.SetBackground(ctx, "bg1"); err != nil {
		t.Fatal(err)
	}
	if f.bg.Mode() != pipeline.ModeReplace {
		t.Errorf("mode = %s, want replace", f.bg.Mode())
	}
	var img *image.NRGBA
	f.m.Frame(func(v View) error {
		img = v.Background()
		return nil
	})
	if img == nil {
		t.Fatal("background image not attached")
	}

	if err := f.m.SetBackground(ctx, "bad"); err == nil {
		t.Fatal("missing background loaded")
	}
	if snap := f.m.Snapshot(); snap.Background.ID != "bg1" || snap.Background.State != StateAttached {
		t.Errorf("background after failure = %+v", snap.Background)
	}

	changed, err := f.m.ToggleBgMode(pipeline.ModeReplace)
	if err != nil || changed {
		t.Errorf("toggle to active mode = %v, %v", changed, err)
	}
}

func TestTeardownReleasesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.m.SetOutfit(ctx, "polo"); err != nil {
		t.Fatal(err)
	}
	if err := f.m.SetHat(ctx, "dadA"); err != nil {
		t.Fatal(err)
	}
	outfit := f.outfit()
	hat := f.loader.roots("dadA")[0]

	f.m.Teardown()
	if len(f.world.Objects()) != 0 || !f.world.Disposed(outfit) || !f.world.Disposed(hat) {
		t.Error("teardown left assets behind")
	}
	if f.shadow.Len() != 0 {
		t.Errorf("%d shadow casters left", f.shadow.Len())
	}
	if err := f.m.SetOutfit(ctx, "tee"); !errors.Is(err, ErrClosed) {
		t.Errorf("SetOutfit after teardown: %v", err)
	}
	snap := f.m.Snapshot()
	if snap.Outfit.State != StateEmpty || snap.Hat.State != StateEmpty || snap.Background.State != StateEmpty {
		t.Errorf("snapshot after teardown = %+v", snap)
	}
}
