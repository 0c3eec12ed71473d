// Package recognize is a client for the recognize.im image recognition API.
//
// Account and image management go through the SOAP endpoint; recognition
// queries are raw image uploads answered with JSON.
//
//	client, err := recognize.New(ctx, clientID, apiKey, clapiKey,
//		recognize.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	if _, err := client.ImageInsert(ctx, "poznan-1", "Poznan", "poznan.jpg"); err != nil {
//		return err
//	}
//	if _, err := client.IndexBuild(ctx); err != nil {
//		return err
//	}
//	res, err := client.Recognize(ctx, "query.jpg", recognize.Single, true)
//
// Errors match ErrTransport, ErrIO, ErrImageLimits or ErrMalformedResponse
// through errors.Is. The client never retries.
package recognize
