// Package core defines the shared types of the promptmesh framework: the
// role-based Message with its closed Part union, the append-only Conversation
// transcript and its persistence interface, retrieval chunk types and the
// Retriever/Embedder capabilities, and streaming turn Events.
//
// Higher level packages (engine, tool, model, retrieval) depend on core;
// core itself stays dependency-light.
package core
