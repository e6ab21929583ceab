package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-harvester/internal/retry"
)

const listingURL = "https://jobs.example.edu/faculty/search.cfm?JobCat=62"

func postingURL(code string) string {
	return fmt.Sprintf("https://jobs.example.edu/faculty/details.cfm?JobCode=%s&Title=Assistant%%20Professor", code)
}

type fakePage struct {
	markup      string
	links       []string
	navErr      error
	sourceErr   error
	bottomAfter int
}

type fakeBrowser struct {
	mu        sync.Mutex
	pages     map[string]*fakePage
	current   *fakePage
	scrolled  int
	navCalls  map[string]int
	calls     int
	closed    int
	linksErr  error
	scrollErr error
}

func newFakeBrowser(pages map[string]*fakePage) *fakeBrowser {
	return &fakeBrowser{pages: pages, navCalls: make(map[string]int)}
}

func (b *fakeBrowser) Navigate(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.navCalls[url]++
	page, ok := b.pages[url]
	if !ok {
		return fmt.Errorf("no such page %s", url)
	}
	if page.navErr != nil {
		return page.navErr
	}
	b.current = page
	b.scrolled = 0
	return nil
}

func (b *fakeBrowser) PageSource(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.current == nil {
		return "", errors.New("no page loaded")
	}
	if b.current.sourceErr != nil {
		return "", b.current.sourceErr
	}
	return b.current.markup, nil
}

func (b *fakeBrowser) Links(context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.linksErr != nil {
		return nil, b.linksErr
	}
	if b.current == nil {
		return nil, errors.New("no page loaded")
	}
	return append([]string(nil), b.current.links...), nil
}

func (b *fakeBrowser) ScrollBy(context.Context, int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.scrollErr != nil {
		return b.scrollErr
	}
	b.scrolled++
	return nil
}

func (b *fakeBrowser) AtBottom(context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.current == nil {
		return false, errors.New("no page loaded")
	}
	return b.scrolled >= b.current.bottomAfter, nil
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

func (b *fakeBrowser) navigations(url string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.navCalls[url]
}

type fakeLauncher struct {
	browser *fakeBrowser
	err     error
}

func (l *fakeLauncher) Launch(context.Context) (Browser, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.browser, nil
}

type fakeExtractor struct {
	err   error
	empty bool
}

func (e fakeExtractor) Extract(markup string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	if e.empty {
		return "", nil
	}
	return "text:" + markup, nil
}

type fakeIndex struct {
	mu         sync.Mutex
	rows       []string
	loadErr    error
	appendErr  error
	appendCall int
	offsets    []int
}

func (s *fakeIndex) LoadIdentifiers(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return append([]string(nil), s.rows...), nil
}

func (s *fakeIndex) AppendIdentifiers(_ context.Context, offset int, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendCall++
	s.offsets = append(s.offsets, offset)
	if s.appendErr != nil {
		return s.appendErr
	}
	for len(s.rows) < offset {
		s.rows = append(s.rows, "")
	}
	s.rows = append(s.rows[:offset], ids...)
	return nil
}

type storedBlob struct {
	name    string
	content string
}

type fakeBlobs struct {
	mu       sync.Mutex
	objects  []storedBlob
	failOn   map[string]error
	readyErr []error
	puts     int
}

func (s *fakeBlobs) PutObject(_ context.Context, name string, _ string, r io.Reader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if err := s.failOn[name]; err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.objects = append(s.objects, storedBlob{name: name, content: string(data)})
	return "memory://" + name, nil
}

func (s *fakeBlobs) Ready(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.readyErr) == 0 {
		return nil
	}
	err := s.readyErr[0]
	s.readyErr = s.readyErr[1:]
	return err
}

func (s *fakeBlobs) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for _, o := range s.objects {
		out = append(out, o.name)
	}
	return out
}

func (s *fakeBlobs) content(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.objects {
		if o.name == name {
			return o.content
		}
	}
	return ""
}

type noSleep struct {
	mu    sync.Mutex
	count int
}

func (s *noSleep) Sleep(context.Context, time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeIDGen struct{}

func (fakeIDGen) NewID() (string, error) { return "run-1", nil }

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	args := m.Called(ctx, topic, payload)
	return args.String(0), args.Error(1)
}

type fixture struct {
	browser *fakeBrowser
	index   *fakeIndex
	blobs   *fakeBlobs
	sleeper *noSleep
	cfg     Config
	deps    Deps
}

func newFixture(existing []string, pages map[string]*fakePage) *fixture {
	browser := newFakeBrowser(pages)
	index := &fakeIndex{rows: existing}
	blobs := &fakeBlobs{failOn: map[string]error{}}
	sleeper := &noSleep{}
	f := &fixture{
		browser: browser,
		index:   index,
		blobs:   blobs,
		sleeper: sleeper,
		cfg: Config{
			IndexURL:       listingURL,
			MinPause:       2 * time.Second,
			MaxPause:       6 * time.Second,
			ScrollStep:     500,
			MaxScrollSteps: 10,
			ContentType:    "text/plain",
		},
	}
	f.deps = Deps{
		Launcher:  &fakeLauncher{browser: browser},
		Extractor: fakeExtractor{},
		Index:     index,
		Blobs:     blobs,
		Sleeper:   sleeper,
		Clock:     &fakeClock{now: time.Unix(1700000000, 0).UTC()},
		IDs:       fakeIDGen{},
		Fetch:     retry.New(retry.Jittered(3, 2*time.Second, 6*time.Second), sleeper, zap.NewNop()),
		Commit:    retry.New(retry.Fixed(3, 5*time.Second), sleeper, zap.NewNop()),
	}
	return f
}

func (f *fixture) harvester() *Harvester {
	h, err := New(f.cfg, f.deps, zap.NewNop())
	if err != nil {
		panic(err)
	}
	return h
}

func listingPage(codes ...string) *fakePage {
	links := []string{"https://jobs.example.edu/about", ""}
	for _, code := range codes {
		links = append(links, postingURL(code))
	}
	return &fakePage{markup: "<html>listing</html>", links: links, bottomAfter: 2}
}

func detailPage(code string) *fakePage {
	return &fakePage{markup: "<html>" + strings.ToLower(code) + "</html>", bottomAfter: 1}
}
