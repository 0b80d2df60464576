package builtin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"polehammer/pkg/tools"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultWeaponsURL is the catalog queried when none is configured.
const DefaultWeaponsURL = "http://localhost:3000/api/weapons"

// WeaponsClient queries the weapons catalog.
type WeaponsClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewWeaponsClient returns a client for the catalog at baseURL.
func NewWeaponsClient(baseURL string, timeout time.Duration) *WeaponsClient {
	if baseURL == "" {
		baseURL = DefaultWeaponsURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WeaponsClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: timeout}}
}

// Declaration returns the getWeapons tool bound to this client.
func (w *WeaponsClient) Declaration() tools.Declaration {
	return tools.MustDeclaration("getWeapons", "Get a list of weapons that satisfy the query constraints",
		w.handle, weaponParams()...)
}

// handle forwards the arguments as query parameters. Catalog failures are returned
// as text so the model can explain them to the user.
func (w *WeaponsClient) handle(ctx context.Context, args map[string]any) (string, error) {
	out, err := w.fetch(ctx, args)
	if err != nil {
		slog.WarnContext(ctx, "Weapons catalog request failed", "url", w.BaseURL, "error", err)
		return fmt.Sprintf("An error occurred: %v", err), nil
	}
	return out, nil
}

func (w *WeaponsClient) fetch(ctx context.Context, args map[string]any) (string, error) {
	u, err := url.Parse(w.BaseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range args {
		q.Set(k, queryValue(v))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := w.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%d %s for url: %s", resp.StatusCode, http.StatusText(resp.StatusCode), u.String())
	}

	// re-encode compactly; the catalog pretty-prints
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("invalid catalog response: %w", err)
	}
	compact, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(compact), nil
}

func queryValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func weaponParams() []tools.Param {
	return []tools.Param{
		{Name: "classes", Type: tools.TypeString, Description: "Comma separated list. Apply filter based on class",
			Enum: []string{"ARCHER", "VANGUARD", "FOOTMAN", "KNIGHT", "AVERAGE"}},
		{Name: "subclasses", Type: tools.TypeString, Description: "Comma separated list. Apply filter based on subclass",
			Enum: []string{"AVERAGE", "LONGBOWMAN", "CROSSBOWMAN", "SKIRMISHER", "DEVASTATOR", "RAIDER", "AMBUSHER",
				"POLEMAN", "MAN_AT_ARMS", "ENGINEER", "OFFICER", "GUARDIAN", "CRUSADER"}},
		{Name: "names", Type: tools.TypeString, Description: "Comma separated list. Apply filter based on weapon name"},
		{Name: "damageTypes", Type: tools.TypeString, Description: "Comma separated list. Apply filter based on damage type",
			Enum: []string{"CUT", "CHOP", "BLUNT"}},
		{Name: "weaponTypes", Type: tools.TypeString, Description: "Comma separated list. Apply filter based on weapon type",
			Enum: []string{"AXE", "HAMMER", "CLUB", "TOOL", "POLEARM", "SPEAR", "SWORD", "DAGGER", "BOW",
				"TWO_HANDED", "ONE_HANDED"}},
		{Name: "attackTypes", Type: tools.TypeString, Description: "Comma separated list. Apply filter based on attack type",
			Enum: []string{"LIGHT_AVERAGE", "HEAVY_AVERAGE", "LIGHT_SLASH", "LIGHT_OVERHEAD", "LIGHT_STAB",
				"HEAVY_SLASH", "HEAVY_OVERHEAD", "HEAVY_STAB", "THROW", "SPECIAL", "LEAPING_STRIKE", "SPRINT_CHARGE"}},
		{Name: "sortColumn", Type: tools.TypeString, Description: "Column to sort by",
			Enum: []string{"name", "damageType", "attackType", "windup", "baseDamage", "averageDamage",
				"footmanDamage", "knightDamage", "holding", "release", "recovery", "combo", "range", "altRange"}},
		{Name: "sortOrder", Type: tools.TypeString, Description: "Sort direction", Enum: []string{"asc", "desc"}},
		{Name: "offset", Type: tools.TypeInteger, Description: "How many records to skip"},
		{Name: "limit", Type: tools.TypeInteger, Description: "How many records to return"},
		// the enum is a string list on purpose: the catalog reads the flag from the query string
		{Name: "partialWeapons", Type: tools.TypeBoolean,
			Description: "If true, only the attacks matched in the query will be returned. Otherwise all weapon attacks will be returned. Defaults to true.",
			Enum:        []string{"true", "false"}},
	}
}
