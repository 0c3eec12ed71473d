package recognize

import (
	"context"
	"encoding/base64"
	"os"

	"go.uber.org/zap"
)

// Auth authenticates against the SOAP API. New calls it implicitly; calling
// it again refreshes the session cookies.
func (c *Client) Auth(ctx context.Context, clientID, clapiKey string) (Response, error) {
	return c.call(ctx, "auth",
		stringField("client_id", clientID),
		stringField("key_clapi", clapiKey),
		stringField("ip", ""),
	)
}

// IndexBuild applies every image insert and delete made since the last build.
func (c *Client) IndexBuild(ctx context.Context) (Response, error) {
	return c.call(ctx, "indexBuild")
}

// ImageInsert uploads the image file at path under imageID with a label.
func (c *Client) ImageInsert(ctx context.Context, imageID, imageName, path string) (Response, error) {
	data, err := c.readImage("imageInsert", path)
	if err != nil {
		return nil, err
	}
	return c.ImageInsertBytes(ctx, imageID, imageName, data)
}

// ImageInsertBytes uploads image data under imageID with a label.
func (c *Client) ImageInsertBytes(ctx context.Context, imageID, imageName string, data []byte) (Response, error) {
	return c.call(ctx, "imageInsert",
		stringField("id", imageID),
		stringField("name", imageName),
		stringField("data", base64.StdEncoding.EncodeToString(data)),
	)
}

// ImageDelete removes one image. An empty imageID removes every image.
func (c *Client) ImageDelete(ctx context.Context, imageID string) (Response, error) {
	return c.call(ctx, "imageDelete", stringField("ID", imageID))
}

// ImageDeleteAll removes every image of the account.
func (c *Client) ImageDeleteAll(ctx context.Context) (Response, error) {
	return c.ImageDelete(ctx, "")
}

// ImageUpdate changes the id and name of a stored image.
func (c *Client) ImageUpdate(ctx context.Context, oldID, newID, newName string) (Response, error) {
	return c.call(ctx, "imageUpdate",
		stringField("ID", oldID),
		mapField("data", [2]string{"id", newID}, [2]string{"name", newName}),
	)
}

// Callback registers the URL the service calls once an index build is done.
func (c *Client) Callback(ctx context.Context, url string) (Response, error) {
	return c.call(ctx, "callback", field{name: "callbackURL", xsiType: "xsd:anyURI", value: url})
}

// IndexStatus reports the progress of the current index build.
func (c *Client) IndexStatus(ctx context.Context) (Response, error) {
	return c.call(ctx, "indexStatus")
}

// UserLimits reports the remaining image and scan quota.
func (c *Client) UserLimits(ctx context.Context) (Response, error) {
	return c.call(ctx, "userLimits")
}

// ModeGet returns the recognition mode of the account.
func (c *Client) ModeGet(ctx context.Context) (Response, error) {
	return c.call(ctx, "modeGet")
}

// ModeChange switches the recognition mode of the account.
func (c *Client) ModeChange(ctx context.Context, mode Mode) (Response, error) {
	return c.call(ctx, "modeChange", stringField("mode", mode.String()))
}

func (c *Client) readImage(operation, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		wrapped := newOperationError(operation, "", ErrIO, err)
		c.logger.Error("failed to read image", zap.Error(wrapped), zap.String("path", path))
		return nil, wrapped
	}
	return data, nil
}
