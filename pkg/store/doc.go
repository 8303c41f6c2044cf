/*
Package store is the entry point of the webhdfs client.

A Client wires configuration, logging, metrics and the request executor
together and exposes every filesystem operation of one account:

	cfg := config.NewDefault()
	cfg.Account.Host = "myaccount.azuredatalakestore.net"

	client, err := store.New(cfg, store.WithTokenProvider(tokens))
	if err != nil {
		return err
	}

	out, err := client.Create(ctx, "/data/part-0000", true, "")
	if err != nil {
		return err
	}
	if _, err := out.Write(payload); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	totals, err := client.ContentSummary(ctx, "/data")

Failures are *errors.StoreError values. Use errors.IsNotFound,
errors.IsConflict, errors.IsTransient and errors.IsCanceled to inspect
them; the attempt history is in StoreError.Attempts.
*/
package store
