// Package distributed resolves the process-level settings a collective
// communication backend expects (rank, world size, master address and port,
// socket interface filter) from the variables an MPI-style launcher exports.
//
// Resolution happens once at startup:
//
//	cfg, err := distributed.Configure(false, distributed.DefaultMasterPort)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx = distributed.NewContext(ctx, cfg)
//
// Configure writes the normalized variables back into the process
// environment for backends that only read os.Environ, and returns the same
// values as a Config so in-process consumers do not have to.
package distributed
