// Package groundgraph answers analytical questions from a curated knowledge
// graph and refuses to answer when the graph cannot ground a response.
//
// A Client ties together entity resolution, graph integration, question
// routing, multi-hop reasoning, citation validation and report rendering.
// Language understanding and graph storage are external collaborators
// reached through narrow interfaces: an nlp.Client and a driver.GraphStore.
//
// # Basic Usage
//
//	store := driver.NewMemoryDriver()
//	client, err := groundgraph.New(ctx, store, nil, groundgraph.Options{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
// A nil completion client is valid. Routing then relies on keywords only,
// traversals run between the entities mentioned in the question and
// narratives are rendered from a template.
//
// # Ingesting Records
//
//	_, err = client.Ingest(ctx, ingest.ExtractedRecord{
//		SourceID: "news-1",
//		Entities: []ingest.ExtractedEntity{{Name: "CompanyA", Type: "Company"}, {Name: "SupplierB"}},
//		Relations: []ingest.ExtractedRelation{
//			{Source: "CompanyA", Target: "SupplierB", Type: "DEPENDS_ON", Properties: map[string]any{"weight": 0.9}},
//		},
//	}, nil)
//
// Ingestion only adds or strengthens graph state. Re-ingesting a record
// leaves the graph unchanged.
//
// # Asking Questions
//
//	answer, err := client.Ask(ctx, "What risk does CompanyA face from CountryX?", nil)
//	if err != nil {
//		// a collaborator was unavailable; answer still holds the fallback
//	}
//	fmt.Println(answer.Report.Markdown())
//
// Every answer walks the same state machine:
//
//	INIT -> CLASSIFIED -> TRAVERSED -> SYNTHESIZED -> VALIDATED -> ACCEPTED -> TERMINAL
//
// A question the graph cannot support ends in REJECTED_FALLBACK. Its text is
// NotFoundMarker verbatim and the live searcher is consulted exactly once;
// its results are attached to the answer separately.
//
// # Configuration
//
// NewFromConfig builds a Client from config.Load(), which reads a viper
// config file and the OPENAI_API_KEY, NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD,
// DB_DRIVER, GROUNDGRAPH_ALIAS_PATH and TELEMETRY_PARQUET_PATH environment
// variables.
package groundgraph
