package sqlinline

const jobColumns = `id::text, owner_id, authenticated, kind, status, style_id, total_images, completed_images,
       credit_cost, result_ids, failed_indices, input_keys, scene_analysis, style_reference_key,
       error_message, created_at, started_at, completed_at`

const QInsertConversionJob = `--sql aca0a6c1-4237-457e-bca6-08878d9a1230
insert into conversion_jobs (
    id, owner_id, authenticated, kind, status, style_id, total_images, completed_images, credit_cost,
    result_ids, failed_indices, input_keys, scene_analysis, style_reference_key, error_message, created_at
)
values (
    $1::uuid, $2::text, $3::boolean, $4::text, $5::text, $6::text, $7::int, 0, $8::int,
    '[]'::jsonb, '[]'::jsonb, $9::jsonb, $10::jsonb, '', '', $11::timestamptz
);
`

const QSelectConversionJob = `--sql cf713be6-9cbb-42ba-b165-db9b6488a8c4
select ` + jobColumns + `
from conversion_jobs
where id = $1::uuid
limit 1;
`

const QMarkJobProcessing = `--sql 11573938-5cf3-463b-89c4-b1bba3ff279b
update conversion_jobs
set status = 'processing', started_at = $2::timestamptz
where id = $1::uuid and status = 'pending';
`

// QSaveJobProgress never moves completed_images backwards.
const QSaveJobProgress = `--sql 7b83223a-5d54-44e1-9700-3d6470e46287
update conversion_jobs
set completed_images = $2::int,
    result_ids = $3::jsonb,
    failed_indices = $4::jsonb,
    style_reference_key = $5::text
where id = $1::uuid
  and status = 'processing'
  and completed_images <= $2::int;
`

const QFinishJob = `--sql 695ffa8c-f74b-45f5-a7cd-1b4f1b4419d7
update conversion_jobs
set status = $2::text, error_message = $3::text, completed_at = $4::timestamptz
where id = $1::uuid and status = 'processing';
`

const QFailJobFrom = `--sql 980cb112-2b9c-435f-a6b0-dc7ae495748c
update conversion_jobs
set status = 'failed', error_message = $3::text, completed_at = $4::timestamptz
where id = $1::uuid and status = any($2::text[])
returning ` + jobColumns + `;
`
