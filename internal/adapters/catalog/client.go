package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"shopbot/internal/metrics"
	"shopbot/pkg/errors"
	"shopbot/pkg/logger"
)

const (
	resourceProducts     = "products"
	resourceCarts        = "carts"
	resourceUserProfiles = "user-profiles"
	resourceProductItems = "product-items"

	maxBodySize = 10 << 20
	maxPageSize = 100
)

// Config contains catalog backend configuration
type Config struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
	// OwnerField is the attribute carts and profiles are keyed by
	OwnerField      string
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Client talks to the Strapi REST API of the shop
type Client struct {
	baseURL    *url.URL
	apiToken   string
	ownerField string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*response]
	log        *logger.Logger
}

type response struct {
	status int
	body   []byte
}

// New creates a catalog client
func New(cfg Config, log *logger.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "catalog base url %q", cfg.BaseURL)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.OwnerField == "" {
		cfg.OwnerField = "tg_id"
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown == 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	log = log.With("component", "catalog_client")

	c := &Client{
		baseURL:    base,
		apiToken:   cfg.APIToken,
		ownerField: cfg.OwnerField,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}

	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return !countsAsFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return c, nil
}

// ListProducts returns all products
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	query := url.Values{}
	query.Set("pagination[pageSize]", strconv.Itoa(maxPageSize))

	var out envelope[[]productDTO]
	if err := c.doJSON(ctx, http.MethodGet, "/api/"+resourceProducts, query, nil, &out); err != nil {
		return nil, err
	}

	products := make([]Product, 0, len(out.Data))
	for _, p := range out.Data {
		products = append(products, p.toDomain())
	}
	return products, nil
}

// GetProduct returns one product with its picture populated
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	query := url.Values{}
	query.Set("populate", "picture")

	var out envelope[productDTO]
	if err := c.doJSON(ctx, http.MethodGet, "/api/"+resourceProducts+"/"+url.PathEscape(id), query, nil, &out); err != nil {
		return nil, err
	}

	product := out.Data.toDomain()
	return &product, nil
}

// FetchImage downloads an image. Relative URLs (as Strapi returns for local
// uploads) are resolved against the base URL.
func (c *Client) FetchImage(ctx context.Context, rawURL string) ([]byte, error) {
	ref, err := url.Parse(rawURL)
	if err != nil || rawURL == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "image url %q", rawURL)
	}
	target := c.baseURL.ResolveReference(ref)

	resp, err := c.execute(ctx, http.MethodGet, target, "GET /uploads", nil)
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

// GetOrCreateCart returns the id of the user's cart, creating it when missing
func (c *Client) GetOrCreateCart(ctx context.Context, userID int64) (string, error) {
	return c.getOrCreate(ctx, resourceCarts, userID)
}

// GetOrCreateUserProfile returns the id of the user's profile, creating it when missing
func (c *Client) GetOrCreateUserProfile(ctx context.Context, userID int64) (string, error) {
	return c.getOrCreate(ctx, resourceUserProfiles, userID)
}

// ListCartLineItems returns the cart contents joined with product data.
// An empty cart is an empty slice, not an error.
func (c *Client) ListCartLineItems(ctx context.Context, cartID string) ([]LineItem, error) {
	query := url.Values{}
	query.Set("filters[cart][documentId][$eq]", cartID)
	query.Set("populate", "product")
	query.Set("pagination[pageSize]", strconv.Itoa(maxPageSize))

	var out envelope[[]lineItemDTO]
	if err := c.doJSON(ctx, http.MethodGet, "/api/"+resourceProductItems, query, nil, &out); err != nil {
		return nil, err
	}

	items := make([]LineItem, 0, len(out.Data))
	for _, li := range out.Data {
		items = append(items, li.toDomain())
	}
	return items, nil
}

// AddLineItem puts quantity kg of a product into the cart
func (c *Client) AddLineItem(ctx context.Context, cartID, productID string, quantity int) error {
	if quantity <= 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "quantity %d", quantity)
	}

	body := envelope[map[string]any]{Data: map[string]any{
		"cart":     cartID,
		"product":  productID,
		"quantity": quantity,
	}}
	return c.doJSON(ctx, http.MethodPost, "/api/"+resourceProductItems, nil, body, nil)
}

// DeleteLineItem removes a line item. The cart itself is left alone.
func (c *Client) DeleteLineItem(ctx context.Context, lineItemID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/"+resourceProductItems+"/"+url.PathEscape(lineItemID), nil, nil, nil)
}

// SetProfileEmail stores the checkout email on the profile
func (c *Client) SetProfileEmail(ctx context.Context, profileID, email string) error {
	body := envelope[map[string]any]{Data: map[string]any{"email": email}}
	return c.doJSON(ctx, http.MethodPut, "/api/"+resourceUserProfiles+"/"+url.PathEscape(profileID), nil, body, nil)
}

// getOrCreate is query, then create, then one re-query if the create was
// rejected as a conflict (another turn won the race)
func (c *Client) getOrCreate(ctx context.Context, resource string, userID int64) (string, error) {
	id, found, err := c.findOwned(ctx, resource, userID)
	if err != nil {
		return "", err
	}
	if found {
		return id, nil
	}

	id, err = c.createOwned(ctx, resource, userID)
	if err == nil {
		c.log.Infow("Created owned resource", "resource", resource, "telegram_id", userID, "id", id)
		return id, nil
	}

	var be *BackendError
	if !errors.As(err, &be) || !be.IsConflict() {
		return "", err
	}

	c.log.Warnw("Create conflict, re-querying", "resource", resource, "telegram_id", userID, "status", be.Status)

	id, found, qerr := c.findOwned(ctx, resource, userID)
	if qerr != nil {
		return "", qerr
	}
	metrics.RecordCatalogConflict(resource, found)
	if !found {
		unresolved := *be
		unresolved.Err = ErrConflictUnresolved
		return "", &unresolved
	}

	return id, nil
}

func (c *Client) findOwned(ctx context.Context, resource string, userID int64) (string, bool, error) {
	query := url.Values{}
	query.Set("filters["+c.ownerField+"][$eq]", strconv.FormatInt(userID, 10))

	var out envelope[[]documentDTO]
	if err := c.doJSON(ctx, http.MethodGet, "/api/"+resource, query, nil, &out); err != nil {
		return "", false, err
	}

	for _, doc := range out.Data {
		if doc.DocumentID != "" {
			return doc.DocumentID, true, nil
		}
	}
	return "", false, nil
}

func (c *Client) createOwned(ctx context.Context, resource string, userID int64) (string, error) {
	body := envelope[map[string]any]{Data: map[string]any{
		c.ownerField: strconv.FormatInt(userID, 10),
	}}

	var out envelope[documentDTO]
	if err := c.doJSON(ctx, http.MethodPost, "/api/"+resource, nil, body, &out); err != nil {
		return "", err
	}
	if out.Data.DocumentID == "" {
		return "", &BackendError{
			Status: http.StatusOK,
			Method: http.MethodPost,
			Path:   "/api/" + resource,
			Err:    errors.Wrapf(errors.ErrInternal, "created %s without documentId", resource),
		}
	}
	return out.Data.DocumentID, nil
}

// doJSON sends in (when not nil) as JSON and decodes the answer into out (when not nil)
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return errors.Wrapf(err, "encode %s %s", method, path)
		}
	}

	target := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	resp, err := c.execute(ctx, method, target, endpointLabel(method, path), payload)
	if err != nil {
		return err
	}

	if out == nil || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return &BackendError{
			Status: resp.status,
			Body:   truncate(string(resp.body), 1024),
			Method: method,
			Path:   path,
			Err:    errors.Wrap(err, "decode response"),
		}
	}
	return nil
}

// execute runs one HTTP round trip through the circuit breaker
func (c *Client) execute(ctx context.Context, method string, target *url.URL, endpoint string, payload []byte) (*response, error) {
	start := time.Now()

	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.roundTrip(ctx, method, target, payload)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordCatalogCall(endpoint, "circuit_open", time.Since(start))
		return nil, &BackendError{
			Status: http.StatusServiceUnavailable,
			Method: method,
			Path:   target.Path,
			Err:    errors.Wrap(errors.ErrUnavailable, err.Error()),
		}
	case err != nil:
		status := "transport"
		var be *BackendError
		if errors.As(err, &be) && be.Status != 0 {
			status = strconv.Itoa(be.Status)
		}
		metrics.RecordCatalogCall(endpoint, status, time.Since(start))
		c.log.Debugw("Catalog call failed", "endpoint", endpoint, "error", err)
		return nil, err
	}

	metrics.RecordCatalogCall(endpoint, strconv.Itoa(resp.status), time.Since(start))
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, method string, target *url.URL, payload []byte) (*response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, &BackendError{Method: method, Path: target.Path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// The token is for our backend only, never for third-party image hosts
	if c.apiToken != "" && target.Host == c.baseURL.Host {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &BackendError{Method: method, Path: target.Path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &BackendError{Status: resp.StatusCode, Method: method, Path: target.Path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		be := &BackendError{
			Status: resp.StatusCode,
			Body:   truncate(string(data), 1024),
			Method: method,
			Path:   target.Path,
		}
		if resp.StatusCode == http.StatusNotFound {
			be.Err = errors.ErrNotFound
		}
		return nil, be
	}

	return &response{status: resp.StatusCode, body: data}, nil
}

// endpointLabel keeps metric cardinality bounded by replacing ids
func endpointLabel(method, path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) > 2 {
		parts = append(parts[:2], "{id}")
	}
	return method + " /" + strings.Join(parts, "/")
}

// Health reports the backend as unavailable while the circuit is open
func (c *Client) Health(ctx context.Context) error {
	if c.breaker.State() == gobreaker.StateOpen {
		return errors.Wrap(errors.ErrUnavailable, "catalog circuit open")
	}
	return nil
}
