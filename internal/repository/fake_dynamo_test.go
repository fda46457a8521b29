package repository

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// fakeDynamo records inputs and answers from scripted outputs.
type fakeDynamo struct {
	puts     []*dynamodb.PutItemInput
	gets     []*dynamodb.GetItemInput
	deletes  []*dynamodb.DeleteItemInput
	queries  []*dynamodb.QueryInput
	scans    []*dynamodb.ScanInput
	batchGet []*dynamodb.BatchGetItemInput

	putErr     error
	getOut     *dynamodb.GetItemOutput
	deleteOut  *dynamodb.DeleteItemOutput
	deleteErr  error
	queryPages []*dynamodb.QueryOutput
	scanPages  []*dynamodb.ScanOutput
	batchPages []*dynamodb.BatchGetItemOutput
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.gets = append(f.gets, in)
	if f.getOut == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return f.getOut, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.deletes = append(f.deletes, in)
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return f.deleteOut, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	// copy so later ExclusiveStartKey updates do not rewrite history
	cp := *in
	f.queries = append(f.queries, &cp)
	if len(f.queryPages) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	out := f.queryPages[0]
	f.queryPages = f.queryPages[1:]
	return out, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	cp := *in
	f.scans = append(f.scans, &cp)
	if len(f.scanPages) == 0 {
		return &dynamodb.ScanOutput{}, nil
	}
	out := f.scanPages[0]
	f.scanPages = f.scanPages[1:]
	return out, nil
}

func (f *fakeDynamo) BatchGetItem(_ context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	f.batchGet = append(f.batchGet, in)
	if len(f.batchPages) == 0 {
		return &dynamodb.BatchGetItemOutput{}, nil
	}
	out := f.batchPages[0]
	f.batchPages = f.batchPages[1:]
	return out, nil
}
