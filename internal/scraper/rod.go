package scraper

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// RodLauncher starts a local Chromium through go-rod.
type RodLauncher struct {
	// Bin is the browser binary; empty lets rod find or download one.
	Bin            string
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
}

// NewRodLauncher returns a headless 1920x1080 launcher.
func NewRodLauncher(bin string, headless bool) *RodLauncher {
	return &RodLauncher{Bin: bin, Headless: headless, ViewportWidth: 1920, ViewportHeight: 1080}
}

// Launch starts the browser and connects to it.
func (l *RodLauncher) Launch(ctx context.Context) (Browser, error) {
	lc := launcher.New().
		Context(ctx).
		Headless(l.Headless).
		Set(flags.NoSandbox).
		Set(flags.Flag("disable-dev-shm-usage"))
	if l.Bin != "" {
		lc = lc.Bin(l.Bin)
	}
	controlURL, err := lc.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		lc.Cleanup()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	return &rodBrowser{browser: browser, launcher: lc, width: l.ViewportWidth, height: l.ViewportHeight}, nil
}

type rodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	width    int
	height   int
}

func (b *rodBrowser) NewPage(ctx context.Context) (Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if b.width > 0 && b.height > 0 {
		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             b.width,
			Height:            b.height,
			DeviceScaleFactor: 1.0,
		}).Call(page); err != nil {
			return nil, fmt.Errorf("set viewport: %w", err)
		}
	}
	return &rodPage{page: page.Context(ctx)}, nil
}

// Close shuts the browser down and removes the temporary profile.
func (b *rodBrowser) Close() error {
	err := b.browser.Close()
	b.launcher.Cleanup()
	return err
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) Navigate(url string, timeout time.Duration) error {
	page := p.page.Timeout(timeout)
	defer page.CancelTimeout()
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (p *rodPage) Click(sel Selector, timeout time.Duration) (bool, error) {
	page := p.page.Timeout(timeout)
	defer page.CancelTimeout()
	var (
		el  *rod.Element
		err error
	)
	if sel.TextPattern != "" {
		el, err = page.ElementR(sel.CSS, sel.TextPattern)
	} else {
		el, err = page.Element(sel.CSS)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return false, nil
		}
		return false, err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, err
	}
	return true, nil
}

func (p *rodPage) Press(key Key) error {
	switch key {
	case KeyEscape:
		return p.page.Keyboard.Press(input.Escape)
	case KeyTab:
		return p.page.Keyboard.Press(input.Tab)
	case KeyEnter:
		return p.page.Keyboard.Press(input.Enter)
	default:
		return fmt.Errorf("unsupported key %d", key)
	}
}

func (p *rodPage) FocusPassword() (bool, error) {
	has, el, err := p.page.Has(`input[type="password"]`)
	if err != nil || !has {
		return false, err
	}
	if err := el.Focus(); err != nil {
		return false, err
	}
	return true, nil
}

func (p *rodPage) FocusedIsPassword() (bool, error) {
	res, err := p.page.Eval(`() => !!document.activeElement && document.activeElement.type === 'password'`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (p *rodPage) InsertText(text string) error {
	return p.page.InsertText(text)
}

func (p *rodPage) SubmitAndWait(timeout time.Duration) error {
	page := p.page.Timeout(timeout)
	defer page.CancelTimeout()
	wait := page.WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
	if err := p.page.Keyboard.Press(input.Enter); err != nil {
		return err
	}
	wait()
	return page.GetContext().Err()
}

func (p *rodPage) HTML() (string, error) {
	return p.page.HTML()
}

func (p *rodPage) URL() (string, error) {
	info, err := p.page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

const fetchJS = `async (url) => {
	const res = await fetch(url, { credentials: 'include' });
	if (!res.ok) {
		return JSON.stringify({ status: res.status });
	}
	const buf = new Uint8Array(await res.arrayBuffer());
	let bin = '';
	for (let i = 0; i < buf.length; i += 0x8000) {
		bin += String.fromCharCode.apply(null, buf.subarray(i, i + 0x8000));
	}
	return JSON.stringify({
		status: res.status,
		type: res.headers.get('content-type') || '',
		data: btoa(bin),
	});
}`

type fetchResult struct {
	Status int    `json:"status"`
	Type   string `json:"type"`
	Data   string `json:"data"`
}

func (p *rodPage) Fetch(url string, timeout time.Duration) ([]byte, string, error) {
	page := p.page.Timeout(timeout)
	defer page.CancelTimeout()
	res, err := page.Evaluate(&rod.EvalOptions{
		JS:           fetchJS,
		JSArgs:       []interface{}{url},
		AwaitPromise: true,
		ByValue:      true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", url, err)
	}
	var out fetchResult
	if err := json.Unmarshal([]byte(res.Value.Str()), &out); err != nil {
		return nil, "", fmt.Errorf("decode fetch result: %w", err)
	}
	if out.Status < 200 || out.Status >= 300 {
		return nil, "", fmt.Errorf("fetch %s: status %d", url, out.Status)
	}
	data, err := base64.StdEncoding.DecodeString(out.Data)
	if err != nil {
		return nil, "", fmt.Errorf("decode body: %w", err)
	}
	return data, out.Type, nil
}
